package usecase

import (
	"errors"
	"slices"
	"testing"

	"dmcs/internal/domain"
)

func TestComputePending(t *testing.T) {
	tests := []struct {
		name    string
		all     []string
		applied []string
		want    []string
	}{
		{"nothing applied", []string{"1000_a.mjs", "2000_b.mjs"}, nil, []string{"1000_a.mjs", "2000_b.mjs"}},
		{"all applied", []string{"1000_a.mjs"}, []string{"1000_a.mjs"}, nil},
		{"keeps listing order", []string{"1000_a.mjs", "2000_b.mjs", "3000_c.mjs"}, []string{"2000_b.mjs"}, []string{"1000_a.mjs", "3000_c.mjs"}},
		{"ignores applied files not on disk", []string{"1000_a.mjs"}, []string{"0500_gone.mjs"}, []string{"1000_a.mjs"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputePending(tt.all, tt.applied)
			if !slices.Equal(got, tt.want) {
				t.Errorf("want %v, got %v", tt.want, got)
			}
		})
	}
}

func TestComputeRollbackSet(t *testing.T) {
	all := []string{"1000_x.mjs", "2000_y.mjs", "3000_z.mjs"}

	got, err := ComputeRollbackSet(all, all, 2)
	if err != nil {
		t.Fatalf("ComputeRollbackSet failed: %v", err)
	}
	want := []string{"3000_z.mjs", "2000_y.mjs"}
	if !slices.Equal(got, want) {
		t.Errorf("want %v, got %v", want, got)
	}
}

func TestComputeRollbackSet_UsesListingOrder(t *testing.T) {
	all := []string{"1000_x.mjs", "2000_y.mjs", "3000_z.mjs"}
	// 適用順とファイル名順が異なっても、ファイル名順の末尾から取り消す
	applied := []string{"3000_z.mjs", "1000_x.mjs"}

	got, err := ComputeRollbackSet(all, applied, 1)
	if err != nil {
		t.Fatalf("ComputeRollbackSet failed: %v", err)
	}
	if !slices.Equal(got, []string{"3000_z.mjs"}) {
		t.Errorf("unexpected set: %v", got)
	}
}

func TestComputeRollbackSet_Errors(t *testing.T) {
	all := []string{"1000_x.mjs", "2000_y.mjs", "3000_z.mjs"}

	tests := []struct {
		name    string
		applied []string
		steps   int
		wantErr error
	}{
		{"more than existing files", all, 4, domain.ErrInsufficientMigrations},
		{"more than applied files", []string{"1000_x.mjs"}, 2, domain.ErrInsufficientMigrations},
		{"applied but missing on disk", []string{"0500_gone.mjs"}, 1, domain.ErrInsufficientMigrations},
		{"zero steps", all, 0, domain.ErrInvalidSteps},
		{"negative steps", all, -1, domain.ErrInvalidSteps},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := ComputeRollbackSet(all, tt.applied, tt.steps)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("want %v, got %v", tt.wantErr, err)
			}
			if set != nil {
				t.Errorf("want no set, got %v", set)
			}
		})
	}
}
