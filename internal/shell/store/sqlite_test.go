package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/lablink/labtemplates/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func createTestTemplate(t *testing.T, store Store, name string, facilityID int) *domain.Template {
	t.Helper()
	template, err := domain.NewTemplate(name, facilityID, []domain.Field{
		{Label: "WBC", Name: "wbc", Type: domain.FieldTypeNumber, Unit: domain.StringPtr("x10^9/L"), Range: domain.StringPtr("4-11")},
		{Label: "Result", Name: "result", Type: domain.FieldTypeSelect, Options: []string{"Positive", "Negative"}},
	})
	require.NoError(t, err)
	template.CreatedBy = domain.IntPtr(42)

	err = store.CreateTemplate(context.Background(), template)
	require.NoError(t, err)
	return template
}

func templateNames(templates []domain.Template) []string {
	names := make([]string, len(templates))
	for i, tpl := range templates {
		names[i] = tpl.Name
	}
	return names
}

var ignoreTimestamps = cmpopts.IgnoreFields(domain.Template{}, "CreatedAt", "UpdatedAt")

// =============================================================================
// Create Tests
// =============================================================================

func TestCreateTemplate_Success(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	created := createTestTemplate(t, store, "Full Blood Count", 1)
	assert.Positive(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	got, err := store.GetTemplate(ctx, created.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(created, got, ignoreTimestamps); diff != "" {
		t.Errorf("stored template mismatch (-want +got):\n%s", diff)
	}
	assert.WithinDuration(t, created.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestCreateTemplate_AssignsIncreasingIDs(t *testing.T) {
	store := setupTestStore(t)

	first := createTestTemplate(t, store, "Widal Test", 1)
	second := createTestTemplate(t, store, "Malaria RDT", 1)
	assert.Greater(t, second.ID, first.ID)
}

func TestCreateTemplate_EmptyFields(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	template := &domain.Template{Name: "Blood Group", FacilityID: domain.IntPtr(2)}
	require.NoError(t, store.CreateTemplate(ctx, template))
	assert.NotNil(t, template.Fields)

	got, err := store.GetTemplate(ctx, template.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.Fields)
	assert.Empty(t, got.Fields)
	assert.Nil(t, got.ServiceID)
	assert.Nil(t, got.CreatedBy)
}

func TestCreateTemplate_DuplicateName(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	createTestTemplate(t, store, "Widal Test", 1)

	// Names are unique across facilities.
	duplicate := &domain.Template{Name: "Widal Test", FacilityID: domain.IntPtr(9)}
	err := store.CreateTemplate(ctx, duplicate)
	require.Error(t, err)
	assert.True(t, IsDuplicate(err))
	assert.Zero(t, duplicate.ID)

	all, err := store.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCreateTemplate_ConcurrentDuplicates(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.CreateTemplate(ctx, &domain.Template{Name: "Lipid Profile", FacilityID: domain.IntPtr(1)})
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, duplicates int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case IsDuplicate(err):
			duplicates++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, duplicates)
}

// =============================================================================
// Lookup Tests
// =============================================================================

func TestFindTemplateByName_SubstringCaseInsensitive(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	created := createTestTemplate(t, store, "Full Blood Count", 1)

	got, err := store.FindTemplateByName(ctx, "blood", 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)
}

func TestFindTemplateByName_NotFoundReturnsNil(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	createTestTemplate(t, store, "Full Blood Count", 1)

	got, err := store.FindTemplateByName(ctx, "urinalysis", 1)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Same name, other facility.
	got, err = store.FindTemplateByName(ctx, "blood", 2)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindTemplateByName_LowestIDWins(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first := createTestTemplate(t, store, "Blood Group", 1)
	createTestTemplate(t, store, "Full Blood Count", 1)

	got, err := store.FindTemplateByName(ctx, "blood", 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)
}

func TestFindTemplateByName_WildcardsMatchLiterally(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	createTestTemplate(t, store, "HbA1c", 1)
	percent := createTestTemplate(t, store, "Neutrophils %", 1)
	underscore := createTestTemplate(t, store, "CD4_count", 1)

	got, err := store.FindTemplateByName(ctx, "%", 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, percent.ID, got.ID)

	got, err = store.FindTemplateByName(ctx, "_", 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, underscore.ID, got.ID)
}

func TestFindTemplateByName_NonASCIICaseInsensitive(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	created := createTestTemplate(t, store, "Ärzte Panel", 1)

	for _, query := range []string{"ärzte", "ÄRZTE PANEL", "Ärzte"} {
		got, err := store.FindTemplateByName(ctx, query, 1)
		require.NoError(t, err)
		require.NotNil(t, got, query)
		assert.Equal(t, created.ID, got.ID)
	}

	found, err := store.FindTemplatesByNames(ctx, []string{"ärzte"}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ärzte Panel"}, templateNames(found))
}

func TestFindTemplatesByNames_Success(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	createTestTemplate(t, store, "Widal Test", 1)
	createTestTemplate(t, store, "Malaria RDT", 1)
	createTestTemplate(t, store, "Full Blood Count", 1)
	createTestTemplate(t, store, "Widal Test B", 2)

	got, err := store.FindTemplatesByNames(ctx, []string{"widal", "MALARIA"}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Widal Test", "Malaria RDT"}, templateNames(got))
}

func TestFindTemplatesByNames_NoMatchIsEmpty(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	createTestTemplate(t, store, "Widal Test", 1)

	got, err := store.FindTemplatesByNames(ctx, []string{"lipid"}, 1)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got, err = store.FindTemplatesByNames(ctx, nil, 1)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestListTemplates_AllFacilitiesInIDOrder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	empty, err := store.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	createTestTemplate(t, store, "Widal Test", 1)
	createTestTemplate(t, store, "Malaria RDT", 2)
	createTestTemplate(t, store, "Blood Group", 3)

	all, err := store.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Widal Test", "Malaria RDT", "Blood Group"}, templateNames(all))
}

func TestGetTemplate_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetTemplate(context.Background(), 999)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

// =============================================================================
// Update Tests
// =============================================================================

func TestUpdateTemplate_Success(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	created := createTestTemplate(t, store, "Widal Test", 1)
	createdAt := created.CreatedAt

	time.Sleep(2 * time.Millisecond)
	update := &domain.Template{
		ID:         created.ID,
		Name:       "Widal Test (Tube)",
		ServiceID:  domain.IntPtr(17),
		FacilityID: domain.IntPtr(1),
		CreatedBy:  domain.IntPtr(7),
		Fields:     []domain.Field{{Label: "O Titre", Name: "o_titre", Type: domain.FieldTypeText}},
	}
	require.NoError(t, store.UpdateTemplate(ctx, update))

	assert.Equal(t, created.ID, update.ID)
	assert.WithinDuration(t, createdAt, update.CreatedAt, time.Millisecond)
	assert.True(t, update.UpdatedAt.After(createdAt))

	got, err := store.GetTemplate(ctx, created.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(update, got); diff != "" {
		t.Errorf("updated template mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateTemplate_NotFoundLeavesStoreUnchanged(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	created := createTestTemplate(t, store, "Widal Test", 1)

	err := store.UpdateTemplate(ctx, &domain.Template{ID: created.ID + 100, Name: "Ghost", FacilityID: domain.IntPtr(1)})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	all, err := store.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Widal Test"}, templateNames(all))
}

func TestUpdateTemplate_DuplicateName(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	createTestTemplate(t, store, "Widal Test", 1)
	other := createTestTemplate(t, store, "Malaria RDT", 1)

	other.Name = "Widal Test"
	err := store.UpdateTemplate(ctx, other)
	require.Error(t, err)
	assert.True(t, IsDuplicate(err))

	got, err := store.GetTemplate(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, "Malaria RDT", got.Name)
}

// =============================================================================
// Transaction Tests
// =============================================================================

func TestWithTx_CommitSuccess(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx Store) error {
		return tx.CreateTemplate(ctx, &domain.Template{Name: "Widal Test", FacilityID: domain.IntPtr(1)})
	})
	require.NoError(t, err)

	got, err := store.FindTemplateByName(ctx, "widal", 1)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestWithTx_RollbackOnError(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	errBoom := errors.New("boom")
	err := store.WithTx(ctx, func(tx Store) error {
		if err := tx.CreateTemplate(ctx, &domain.Template{Name: "Widal Test", FacilityID: domain.IntPtr(1)}); err != nil {
			return err
		}
		found, err := tx.FindTemplateByName(ctx, "widal", 1)
		if err != nil {
			return err
		}
		require.NotNil(t, found, "insert is visible inside the transaction")
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	all, err := store.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestWithTx_PanicReleasesConnection(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = store.WithTx(ctx, func(tx Store) error {
			if err := tx.CreateTemplate(ctx, &domain.Template{Name: "Widal Test", FacilityID: domain.IntPtr(1)}); err != nil {
				return err
			}
			panic("handler bug")
		})
	})

	// The single SQLite connection must be free again.
	timeoutCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	all, err := store.ListTemplates(timeoutCtx)
	require.NoError(t, err)
	assert.Empty(t, all, "panicking transaction is rolled back")
}

func TestWithTx_NestedTx(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx Store) error {
		return tx.WithTx(ctx, func(inner Store) error {
			assert.Same(t, tx, inner)
			return inner.CreateTemplate(ctx, &domain.Template{Name: "Widal Test", FacilityID: domain.IntPtr(1)})
		})
	})
	require.NoError(t, err)

	all, err := store.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestWithTx_TxStoreLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx Store) error {
		assert.NoError(t, tx.Ping(ctx))
		assert.NoError(t, tx.Close())
		_, err := tx.ListTemplates(ctx)
		return err
	})
	require.NoError(t, err)
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestNew_SQLiteAliases(t *testing.T) {
	for _, driver := range []string{DriverSQLite, "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			s, err := New(driver, ":memory:")
			require.NoError(t, err)
			defer s.Close()

			assert.Equal(t, DriverSQLite, s.Driver())
			assert.NoError(t, s.Ping(context.Background()))
		})
	}
}

func TestNew_UnsupportedDriver(t *testing.T) {
	_, err := New("oracle", "whatever")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

func TestConfigurePool_SQLiteKeepsMemoryDatabase(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	createTestTemplate(t, store, "Widal Test", 1)
	store.ConfigurePool(PoolConfig{MaxOpenConns: 10, MaxIdleConns: 1, ConnMaxLifetime: time.Nanosecond})

	all, err := store.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// =============================================================================
// Error Tests
// =============================================================================

func TestStoreError_Error(t *testing.T) {
	err := NewStoreError("GetTemplate", "template", "7", "template not found", ErrNotFound)
	assert.Equal(t, "GetTemplate template 7: template not found", err.Error())

	err = NewStoreError("ListTemplates", "template", "", "boom", nil)
	assert.Equal(t, "ListTemplates template: boom", err.Error())

	err = NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	assert.Equal(t, "WithTx: failed to begin transaction", err.Error())
}

func TestStoreError_Unwrap(t *testing.T) {
	err := NewStoreError("CreateTemplate", "template", "Widal", "dup", ErrDuplicateName)
	assert.ErrorIs(t, err, ErrDuplicateName)
	assert.True(t, IsDuplicate(err))
	assert.False(t, IsNotFound(err))
}

func TestContainsPattern(t *testing.T) {
	assert.Equal(t, "%blood%", containsPattern("blood"))
	assert.Equal(t, `%50\%\_off\\%`, containsPattern(`50%_off\`))
}
