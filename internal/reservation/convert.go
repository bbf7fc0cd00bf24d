package reservation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ipatlas/internal/audit"
	"ipatlas/internal/config"
	"ipatlas/internal/domain"
	"ipatlas/internal/faults"

	"gorm.io/gorm"
)

// ConvertRequest names the resource a reservation becomes.
type ConvertRequest struct {
	Name        string
	Description string
	Owner       string
	Tags        []string

	// Host-only metadata, ignored for region conversions.
	DeviceType string
	OSType     string
	Notes      string
}

// ConvertResult carries whichever resource was created.
type ConvertResult struct {
	Region *domain.Region     `json:"region,omitempty"`
	Host   *domain.Host       `json:"host,omitempty"`
	Quota  domain.QuotaStatus `json:"quota"`
}

// Convert turns an active reservation into a named region or host at
// the reserved coordinate. The status flip, the resource insert, the
// quota increment and the audit event commit together; a guarded
// update on the status keeps two converters from racing past each
// other.
func (m *Manager) Convert(ctx context.Context, userID, reservationID string, req ConvertRequest) (*ConvertResult, error) {
	ctx, cancel := context.WithTimeout(ctx, config.SingleOpTimeout())
	defer cancel()

	reservation, err := m.load(ctx, userID, reservationID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if !reservation.ActiveAt(now) {
		if reservation.Status == domain.ReservationStatusActive {
			return nil, faults.Validation("reservation has expired")
		}
		return nil, faults.Validation(fmt.Sprintf("reservation is %s", reservation.Status))
	}

	if err := validateConvertName(req.Name); err != nil {
		return nil, err
	}

	switch reservation.ResourceType {
	case domain.ResourceRegion:
		return m.convertToRegion(ctx, reservation, req)
	case domain.ResourceHost:
		return m.convertToHost(ctx, reservation, req)
	default:
		return nil, faults.Validation(fmt.Sprintf("reservation has unknown resource type %q", reservation.ResourceType))
	}
}

func (m *Manager) convertToRegion(ctx context.Context, reservation *domain.Reservation, req ConvertRequest) (*ConvertResult, error) {
	if _, err := m.ledger.Check(ctx, reservation.UserID, domain.QuotaRegion); err != nil {
		return nil, err
	}

	mapping, err := m.refMap.LookupByX(ctx, reservation.XOctet)
	if err != nil {
		return nil, err
	}

	var nameCount int64
	err = m.db.WithContext(ctx).Model(&domain.Region{}).
		Where("user_id = ? AND country = ? AND region_name = ?", reservation.UserID, mapping.Country, req.Name).
		Count(&nameCount).Error
	if err != nil {
		return nil, fmt.Errorf("reservation: check region name: %w", err)
	}
	if nameCount > 0 {
		return nil, faults.DuplicateAllocation(
			fmt.Sprintf("region name %q already exists in %s", req.Name, mapping.Country),
			map[string]any{"region_name": req.Name, "country": mapping.Country})
	}

	region := domain.Region{
		UserID:      reservation.UserID,
		XOctet:      reservation.XOctet,
		YOctet:      reservation.YOctet,
		Country:     mapping.Country,
		Continent:   mapping.Continent,
		RegionName:  req.Name,
		Description: req.Description,
		Owner:       req.Owner,
		Status:      domain.RegionStatusActive,
		Tags:        req.Tags,
		CreatedBy:   reservation.UserID,
		UpdatedBy:   reservation.UserID,
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := m.claim(tx, reservation); err != nil {
			return err
		}
		if err := tx.Create(&region).Error; err != nil {
			return err
		}
		if err := m.ledger.Adjust(ctx, tx, reservation.UserID, domain.QuotaRegion, 1); err != nil {
			return err
		}
		return m.audit.Record(ctx, tx, audit.Entry{
			Action:       domain.ActionConvertReservation,
			ResourceType: domain.ResourceRegion,
			ResourceID:   strconv.FormatUint(region.ID, 10),
			UserID:       reservation.UserID,
			Reason:       reservation.Reason,
			Snapshot:     region.Snapshot(),
			Changes: []domain.FieldChange{
				{Field: "reservation_id", OldValue: reservation.ID, NewValue: nil},
			},
		})
	})
	if err != nil {
		return nil, convertError(err, domain.RegionCIDR(reservation.XOctet, reservation.YOctet))
	}

	m.index.InvalidateY(ctx, reservation.UserID, reservation.XOctet)
	return &ConvertResult{Region: &region, Quota: m.quotaSnapshot(ctx, reservation.UserID, domain.QuotaRegion)}, nil
}

func (m *Manager) convertToHost(ctx context.Context, reservation *domain.Reservation, req ConvertRequest) (*ConvertResult, error) {
	if reservation.ZOctet == nil {
		return nil, faults.Validation("host reservation is missing its z octet")
	}
	if _, err := m.ledger.Check(ctx, reservation.UserID, domain.QuotaHost); err != nil {
		return nil, err
	}

	var region domain.Region
	err := m.db.WithContext(ctx).
		Where("user_id = ? AND x_octet = ? AND y_octet = ?", reservation.UserID, reservation.XOctet, reservation.YOctet).
		First(&region).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, faults.NotFound(domain.ResourceRegion, domain.RegionCIDR(reservation.XOctet, reservation.YOctet))
		}
		return nil, fmt.Errorf("reservation: load parent region: %w", err)
	}
	if region.Status != domain.RegionStatusActive {
		return nil, faults.Validation(fmt.Sprintf("region %q is %s, not Active", region.RegionName, region.Status))
	}

	var nameCount int64
	err = m.db.WithContext(ctx).Model(&domain.Host{}).
		Where("region_id = ? AND hostname = ?", region.ID, req.Name).
		Count(&nameCount).Error
	if err != nil {
		return nil, fmt.Errorf("reservation: check hostname: %w", err)
	}
	if nameCount > 0 {
		return nil, faults.DuplicateAllocation(
			fmt.Sprintf("hostname %q already exists in region %d", req.Name, region.ID),
			map[string]any{"hostname": req.Name, "region_id": region.ID})
	}

	host := domain.Host{
		UserID:     reservation.UserID,
		RegionID:   region.ID,
		XOctet:     reservation.XOctet,
		YOctet:     reservation.YOctet,
		ZOctet:     *reservation.ZOctet,
		Hostname:   req.Name,
		DeviceType: req.DeviceType,
		OSType:     req.OSType,
		Status:     domain.HostStatusActive,
		Tags:       req.Tags,
		Notes:      req.Notes,
		CreatedBy:  reservation.UserID,
		UpdatedBy:  reservation.UserID,
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := m.claim(tx, reservation); err != nil {
			return err
		}
		if err := tx.Create(&host).Error; err != nil {
			return err
		}
		if err := m.ledger.Adjust(ctx, tx, reservation.UserID, domain.QuotaHost, 1); err != nil {
			return err
		}
		return m.audit.Record(ctx, tx, audit.Entry{
			Action:       domain.ActionConvertReservation,
			ResourceType: domain.ResourceHost,
			ResourceID:   strconv.FormatUint(host.ID, 10),
			UserID:       reservation.UserID,
			Reason:       reservation.Reason,
			Snapshot:     host.Snapshot(),
			Changes: []domain.FieldChange{
				{Field: "reservation_id", OldValue: reservation.ID, NewValue: nil},
			},
		})
	})
	if err != nil {
		return nil, convertError(err, host.Address)
	}

	return &ConvertResult{Host: &host, Quota: m.quotaSnapshot(ctx, reservation.UserID, domain.QuotaHost)}, nil
}

// claim flips the reservation to converted, guarded on it still being
// active so two converters cannot both win.
func (m *Manager) claim(tx *gorm.DB, reservation *domain.Reservation) error {
	result := tx.Model(&domain.Reservation{}).
		Where("id = ? AND status = ?", reservation.ID, domain.ReservationStatusActive).
		Update("status", domain.ReservationStatusConverted)
	if result.Error != nil {
		return fmt.Errorf("reservation: mark converted: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return faults.DuplicateAllocation("reservation was already claimed",
			map[string]any{"reservation_id": reservation.ID})
	}
	return nil
}

func (m *Manager) quotaSnapshot(ctx context.Context, userID string, kind domain.QuotaKind) domain.QuotaStatus {
	q, err := m.ledger.Get(ctx, userID)
	if err != nil {
		return domain.QuotaStatus{Kind: kind}
	}
	return q.StatusFor(kind)
}

// convertError translates an insert race on the fixed coordinate into
// the taxonomy; there is no alternative coordinate to retry with.
func convertError(err error, coordinate string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return faults.DuplicateAllocation(
			fmt.Sprintf("%s was allocated while converting the reservation", coordinate),
			map[string]any{"coordinate": coordinate})
	}
	return err
}

func validateConvertName(name string) error {
	if strings.TrimSpace(name) == "" {
		return faults.Validation("name must not be empty")
	}
	if len(name) > 100 {
		return faults.Validation("name must be at most 100 characters")
	}
	return nil
}
