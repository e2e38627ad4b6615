package cmd

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go2ctl/go2ctl/internal/profile"
	"github.com/go2ctl/go2ctl/internal/robot/catalog"
	"github.com/go2ctl/go2ctl/internal/robot/session"
)

func TestRenderCatalogTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderCatalog(&buf, catalog.Default(), &CommandsOptions{OutputFormat: "text"}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Greater(t, len(lines), 2)
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))
	assert.Contains(t, buf.String(), "hello")
	assert.Contains(t, buf.String(), "x:number,y:number,z:number (x=0.5,y=0,z=0)")
}

func TestRenderCatalogJSONFiltered(t *testing.T) {
	cat := catalog.New(
		catalog.Entry{Name: "a", Topic: "t1", APIID: 1},
		catalog.Entry{Name: "b", Topic: "t2", APIID: 2, Params: []catalog.Param{{Name: "v", Kind: catalog.KindString}}},
	)

	var buf bytes.Buffer
	require.NoError(t, renderCatalog(&buf, cat, &CommandsOptions{OutputFormat: "json", Topic: "t2"}))

	var rows []catalogRow
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "b", rows[0].Name)
	assert.Equal(t, []string{"v:string?"}, rows[0].Params)

	buf.Reset()
	require.NoError(t, renderCatalog(&buf, cat, &CommandsOptions{OutputFormat: "json", Topic: "none"}))
	assert.Equal(t, "[]\n", buf.String())
}

func TestProfileAdd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.toml")
	t.Setenv("GO2CTL_PROFILE_PATH", path)

	var out bytes.Buffer
	err := runProfileAdd(strings.NewReader("My Lab\n"), &out, &profileAddOptions{
		Target: targetOptions{Host: "10.0.0.5"},
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Profile 'my-lab' added")

	pm := profile.NewProfileManagerAt(path)
	require.NoError(t, pm.Load())
	cfg, err := pm.Connection("")
	require.NoError(t, err)
	assert.Equal(t, session.LocalStationHost("10.0.0.5"), cfg)

	err = runProfileAdd(strings.NewReader("\n"), &out, &profileAddOptions{Target: targetOptions{AP: true}})
	assert.Error(t, err, "empty name")

	err = runProfileAdd(nil, &out, &profileAddOptions{Name: "x"})
	assert.Error(t, err, "no target")
}
