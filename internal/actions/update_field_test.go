package actions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/lendflow/pkg/schema"
)

type fieldUpdate struct {
	dealID string
	field  string
	value  any
}

type memoryDeals struct {
	updates []fieldUpdate
	err     error
}

func (m *memoryDeals) UpdateDealField(_ context.Context, dealID, field string, value any, _ time.Time) error {
	if m.err != nil {
		return m.err
	}
	m.updates = append(m.updates, fieldUpdate{dealID, field, value})
	return nil
}

func TestUpdateField(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *schema.UpdateFieldConfig
		data        map[string]any
		wantErr     string
		wantUpdates int
	}{
		{"updates deal", &schema.UpdateFieldConfig{Field: "priority", Value: "high"}, map[string]any{"dealId": "d-1"}, "", 1},
		{"missing field", &schema.UpdateFieldConfig{Value: "high"}, map[string]any{"dealId": "d-1"}, "No field specified", 0},
		{"missing deal", &schema.UpdateFieldConfig{Field: "priority"}, map[string]any{}, "No dealId in trigger data", 0},
		{"test deal is a no-op", &schema.UpdateFieldConfig{Field: "priority"}, map[string]any{"dealId": TestDealID}, "", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			deals := &memoryDeals{}
			out, err := NewUpdateFieldAction(deals, nil, nil).Execute(context.Background(),
				ActionInput{ActionID: "u", Config: tc.cfg, TriggerData: tc.data})
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tc.wantErr, schema.Message(err))
			} else {
				require.NoError(t, err)
				assert.NotEmpty(t, out.Message)
			}
			assert.Len(t, deals.updates, tc.wantUpdates)
		})
	}
}

func TestUpdateField_PassesValue(t *testing.T) {
	deals := &memoryDeals{}
	_, err := NewUpdateFieldAction(deals, nil, nil).Execute(context.Background(), ActionInput{
		Config:      &schema.UpdateFieldConfig{Field: "amount", Value: float64(250000)},
		TriggerData: map[string]any{"dealId": "d-7"},
	})
	require.NoError(t, err)
	assert.Equal(t, []fieldUpdate{{"d-7", "amount", float64(250000)}}, deals.updates)
}

func TestUpdateField_StoreError(t *testing.T) {
	deals := &memoryDeals{err: schema.NewError(schema.ErrCodeNotFound, `deal "d-1" not found`)}
	_, err := NewUpdateFieldAction(deals, nil, nil).Execute(context.Background(), ActionInput{
		Config:      &schema.UpdateFieldConfig{Field: "priority"},
		TriggerData: map[string]any{"dealId": "d-1"},
	})
	require.Error(t, err)
	assert.Equal(t, `Failed to update field: deal "d-1" not found`, schema.Message(err))
}
