package biclient

import "testing"

func TestAllFinal(t *testing.T) {
	cases := []struct {
		name      string
		refreshes []Refresh
		want      bool
	}{
		{"nil history is not final", nil, false},
		{"empty history is final", []Refresh{}, true},
		{"all completed", []Refresh{{Status: RefreshCompleted}, {Status: RefreshCompleted}}, true},
		{"mixed final states", []Refresh{{Status: RefreshCompleted}, {Status: RefreshFailed}, {Status: RefreshDisabled}}, true},
		{"unknown still running", []Refresh{{Status: RefreshCompleted}, {Status: RefreshUnknown}}, false},
		{"single unknown", []Refresh{{Status: RefreshUnknown}}, false},
		{"unrecognized status treated as running", []Refresh{{Status: RefreshStatus("NotStarted")}}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := AllFinal(tc.refreshes); got != tc.want {
				t.Errorf("AllFinal(%v) = %v, want %v", tc.refreshes, got, tc.want)
			}
		})
	}
}
