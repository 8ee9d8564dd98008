package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karsten/pillarcat/internal/domain"
	"github.com/karsten/pillarcat/internal/events"
	"github.com/karsten/pillarcat/internal/extract"
	"github.com/karsten/pillarcat/internal/repository"
)

func fireDoorSchema() *domain.PillarSchema {
	return &domain.PillarSchema{
		ID:     "schema-1",
		Pillar: "fire_doors",
		Fields: domain.FieldDefs{
			{Name: "fire_rating", Type: domain.FieldTypeEnum, AllowedValues: []string{"EI30", "EI60", "EI90"}},
			{Name: "leaf_thickness_mm", Type: domain.FieldTypeNumber},
			{Name: "acoustic_rated", Type: domain.FieldTypeBool},
			{Name: "core_material", Type: domain.FieldTypeString},
		},
		Required: domain.StringArray{"fire_rating", "leaf_thickness_mm"},
	}
}

func seedProducts(t *testing.T, store *fakeProductStore, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := store.Create(context.Background(), &domain.Product{
			ID:             fmt.Sprintf("p-%03d", i),
			ManufacturerID: "mfr-1",
			OrganizationID: "org-1",
			Pillar:         "fire_doors",
			Code:           fmt.Sprintf("FD-%03d", i),
			Name:           fmt.Sprintf("Fire Door %d", i),
		})
		require.NoError(t, err)
	}
}

func TestNormalizeWarnsOnMissingRequiredField(t *testing.T) {
	products := newFakeProductStore()
	seedProducts(t, products, 1)
	schemas := &fakeSchemaStore{byPillar: map[string]*domain.PillarSchema{"fire_doors": fireDoorSchema()}}
	bus := &fakeEmitter{}

	extractor := &fakeExtractor{
		extractFields: func(_ context.Context, _ string, _ *domain.PillarSchema) (*extract.FieldResult, error) {
			return &extract.FieldResult{
				Specifications: map[string]string{"fire_rating": "EI30"},
				Confidence:     90,
			}, nil
		},
	}

	svc := NewNormalizeService(products, schemas, extractor, bus, 10, 0)
	require.NoError(t, svc.HandleNormalize(context.Background(), events.Payload{ManufacturerID: "mfr-1"}))

	p, err := products.GetByID(context.Background(), "p-000")
	require.NoError(t, err)
	require.NotNil(t, p.NormalizedAt)
	assert.True(t, p.NeedsReview)
	assert.Contains(t, p.Warnings, `required field "leaf_thickness_mm" missing`)
}

func TestNormalizePausesBetweenExtractionCalls(t *testing.T) {
	products := newFakeProductStore()
	seedProducts(t, products, 3)
	schemas := &fakeSchemaStore{byPillar: map[string]*domain.PillarSchema{"fire_doors": fireDoorSchema()}}
	bus := &fakeEmitter{}

	var callTimes []time.Time
	extractor := &fakeExtractor{
		extractFields: func(_ context.Context, _ string, _ *domain.PillarSchema) (*extract.FieldResult, error) {
			callTimes = append(callTimes, time.Now())
			return &extract.FieldResult{
				Specifications: map[string]string{"fire_rating": "EI30", "leaf_thickness_mm": "44"},
				Confidence:     90,
			}, nil
		},
	}

	delay := 20 * time.Millisecond
	svc := NewNormalizeService(products, schemas, extractor, bus, 10, delay)
	require.NoError(t, svc.HandleNormalize(context.Background(), events.Payload{ManufacturerID: "mfr-1"}))

	require.Len(t, callTimes, 3)
	for i := 1; i < len(callTimes); i++ {
		assert.GreaterOrEqual(t, callTimes[i].Sub(callTimes[i-1]), delay,
			"extraction calls must be paced by the configured delay")
	}
}

func TestNormalizeSelfContinuesUntilBacklogDrained(t *testing.T) {
	products := newFakeProductStore()
	seedProducts(t, products, 250)
	schemas := &fakeSchemaStore{byPillar: map[string]*domain.PillarSchema{"fire_doors": fireDoorSchema()}}
	bus := &fakeEmitter{}

	invocations := 0
	extractor := &fakeExtractor{
		extractFields: func(_ context.Context, _ string, _ *domain.PillarSchema) (*extract.FieldResult, error) {
			return &extract.FieldResult{
				Specifications: map[string]string{"fire_rating": "EI60", "leaf_thickness_mm": "54"},
				Confidence:     95,
			}, nil
		},
	}

	svc := NewNormalizeService(products, schemas, extractor, bus, 100, 0)
	payload := events.Payload{ManufacturerID: "mfr-1"}

	// Drive the self-continuation loop the way the dispatcher would.
	queue := []events.Payload{payload}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		invocations++
		require.NoError(t, svc.HandleNormalize(context.Background(), next))
		for _, ev := range bus.drain() {
			require.Equal(t, events.NormalizeRequested, ev.Name)
			queue = append(queue, ev.Payload)
		}
		require.Less(t, invocations, 10, "self-continuation did not terminate")
	}

	// 250 products at batch size 100 is two full batches plus one partial.
	assert.Equal(t, 3, invocations)

	remaining, err := products.CountUnnormalized(context.Background(), repository.Scope{ManufacturerID: "mfr-1"})
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestNormalizeWithoutSchemaStillCompletes(t *testing.T) {
	products := newFakeProductStore()
	seedProducts(t, products, 1)
	schemas := &fakeSchemaStore{byPillar: map[string]*domain.PillarSchema{}}
	bus := &fakeEmitter{}
	extractor := &fakeExtractor{
		extractFields: func(_ context.Context, _ string, _ *domain.PillarSchema) (*extract.FieldResult, error) {
			t.Fatal("extraction must not run without a schema")
			return nil, nil
		},
	}

	svc := NewNormalizeService(products, schemas, extractor, bus, 10, 0)
	require.NoError(t, svc.HandleNormalize(context.Background(), events.Payload{ManufacturerID: "mfr-1"}))

	p, err := products.GetByID(context.Background(), "p-000")
	require.NoError(t, err)
	require.NotNil(t, p.NormalizedAt)
	assert.True(t, p.NeedsReview)
	assert.Contains(t, p.Warnings, `no schema configured for pillar "fire_doors"`)
}

func TestValidateSpecifications(t *testing.T) {
	schema := fireDoorSchema()

	warnings := ValidateSpecifications(schema, map[string]string{
		"fire_rating":       "EI45",
		"leaf_thickness_mm": "fifty-four",
		"acoustic_rated":    "kind of",
		"color":             "red",
	})

	assert.Contains(t, warnings, `field "fire_rating" has value "EI45" outside allowed values`)
	assert.Contains(t, warnings, `field "leaf_thickness_mm" expects a number, got "fifty-four"`)
	assert.Contains(t, warnings, `field "acoustic_rated" expects a boolean, got "kind of"`)
	assert.Contains(t, warnings, `unknown field "color"`)
}

func TestValidateSpecificationsAcceptsCleanInput(t *testing.T) {
	schema := fireDoorSchema()

	warnings := ValidateSpecifications(schema, map[string]string{
		"fire_rating":       "EI30",
		"leaf_thickness_mm": "44",
		"acoustic_rated":    "true",
		"core_material":     "particleboard",
	})

	assert.Empty(t, warnings)
}
