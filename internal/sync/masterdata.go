package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maquinaplus/fieldsync/internal/api"
	"github.com/maquinaplus/fieldsync/internal/store"
)

// MasterDataSyncer refreshes the local machine and oil brand catalogs
// from the backend.
type MasterDataSyncer struct {
	store  store.Store
	client api.Client
	logger *slog.Logger
}

// NewMasterDataSyncer creates the master data use case.
func NewMasterDataSyncer(s store.Store, c api.Client) *MasterDataSyncer {
	return &MasterDataSyncer{
		store:  s,
		client: c,
		logger: slog.Default().With("component", "masterdata-sync"),
	}
}

// FetchMachines replaces the machine catalog. The catalog is fetched
// fully before the local rows are swapped, so a failed fetch leaves
// the previous catalog intact.
func (m *MasterDataSyncer) FetchMachines(ctx context.Context) error {
	machines, err := m.client.ListMachines(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch machines: %w", err)
	}

	rows := make([]store.Machine, 0, len(machines))
	for _, mc := range machines {
		rows = append(rows, store.Machine{ID: mc.ID, Name: mc.Name, Model: mc.Model})
	}
	if err := m.store.ReplaceMachines(ctx, rows); err != nil {
		return fmt.Errorf("failed to store machines: %w", err)
	}

	m.logger.Info("Machine catalog refreshed", "machines", len(rows))
	return nil
}

// FetchOilBrands replaces the oil brand catalog.
func (m *MasterDataSyncer) FetchOilBrands(ctx context.Context) error {
	brands, err := m.client.ListOilBrands(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch oil brands: %w", err)
	}

	rows := make([]store.OilBrand, 0, len(brands))
	for _, b := range brands {
		rows = append(rows, store.OilBrand{ID: b.ID, Name: b.Name})
	}
	if err := m.store.ReplaceOilBrands(ctx, rows); err != nil {
		return fmt.Errorf("failed to store oil brands: %w", err)
	}

	m.logger.Info("Oil brand catalog refreshed", "oil_brands", len(rows))
	return nil
}

// Fetch replaces both catalogs.
func (m *MasterDataSyncer) Fetch(ctx context.Context) error {
	if err := m.FetchMachines(ctx); err != nil {
		return err
	}
	return m.FetchOilBrands(ctx)
}
