// Package testutil provides shared test fixtures.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/labsweep/internal/param"
)

// ScenarioSet returns the reference four-parameter template: two constants
// and two swept parameters, y outer and w inner.
//
//	x=5  y=[4.5 3.4 3 5]  z=1  w=[1 2 3 4]
func ScenarioSet(t testing.TB) *param.Set {
	t.Helper()
	s, err := param.NewSet(
		param.New("x", 5.0, "a.u."),
		param.New("y", []float64{4.5, 3.4, 3, 5}, "a.u."),
		param.New("z", 1.0, "a.u."),
		param.New("w", []float64{1, 2, 3, 4}, "a.u."),
	)
	require.NoError(t, err)
	return s
}

// WriteFile writes body to name inside a fresh temporary directory and
// returns its path.
func WriteFile(t testing.TB, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}
