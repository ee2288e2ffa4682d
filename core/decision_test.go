package core

import (
	"errors"
	"testing"
)

func TestDecide(t *testing.T) {
	cases := []struct {
		name     string
		occupant *Occupant
		want     Decision
		wantErr  error
	}{
		{name: "empty", occupant: nil, want: DecisionCreate},
		{name: "own", occupant: &Occupant{EntityID: "e1", OwnerID: "alice"}, want: DecisionRemove},
		{name: "foreign", occupant: &Occupant{EntityID: "e2", OwnerID: "bob"}, want: DecisionReject, wantErr: ErrNotOwner},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decide(tc.occupant, "alice")
			if got != tc.want {
				t.Fatalf("Decide = %v, want %v", got, tc.want)
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}
