package binder

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/keyfile"
)

type recordingTarget struct {
	name   string
	props  map[string]any
	sets   int
	reject string
}

func newTarget() *recordingTarget {
	return &recordingTarget{name: "tracker", props: map[string]any{}}
}

func (r *recordingTarget) Name() string { return r.name }

func (r *recordingTarget) SetProperty(key string, value any) error {
	if key == r.reject {
		return errors.New("no such property")
	}
	r.sets++
	r.props[key] = value
	return nil
}

func parse(t *testing.T, dir, content string) *keyfile.Store {
	t.Helper()
	store, err := keyfile.Parse([]byte(content), dir)
	require.NoError(t, err)
	return store
}

func TestBind_KnownKeysNoWarnings(t *testing.T) {
	store := parse(t, t.TempDir(), "[tracker]\ntracker-width=640\ntracker-height=480\ngpu-id=0\n")
	target := newTarget()

	res, err := Bind(target, store, TrackerGroup, TrackerSetters())
	require.NoError(t, err)

	assert.Empty(t, res.Warnings)
	assert.Equal(t, map[string]any{
		"tracker-width":  uint(640),
		"tracker-height": uint(480),
		"gpu-id":         uint(0),
	}, target.props)
}

func TestBind_UnknownKeyWarnsOnce(t *testing.T) {
	store := parse(t, t.TempDir(), "[tracker]\ntracker-width=640\ntracker-height=480\ngpu-id=0\nfoo=1\n")
	target := newTarget()

	res, err := Bind(target, store, TrackerGroup, TrackerSetters())
	require.NoError(t, err)

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "foo", res.Warnings[0].Key)
	assert.Equal(t, "unknown key 'foo' for group [tracker]", res.Warnings[0].String())
	assert.Len(t, res.Properties, 3)
	assert.NotContains(t, target.props, "foo")
}

func TestBind_TypeMismatchIsFatalAndAppliesNothing(t *testing.T) {
	// gpu-id fails after tracker-width already resolved: nothing may reach
	// the stage.
	store := parse(t, t.TempDir(), "[tracker]\ntracker-width=640\ngpu-id=zero\n")
	target := newTarget()

	res, err := Bind(target, store, TrackerGroup, TrackerSetters())
	require.Error(t, err)
	assert.Nil(t, res)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "gpu-id", verr.Key)
	assert.Equal(t, "tracker", verr.Stage)
	assert.ErrorIs(t, err, keyfile.ErrTypeMismatch)
	assert.Zero(t, target.sets)
}

func TestBind_NegativeUnsignedRejected(t *testing.T) {
	store := parse(t, t.TempDir(), "[tracker]\ntracker-width=-1\n")

	_, err := Bind(newTarget(), store, TrackerGroup, TrackerSetters())
	assert.ErrorIs(t, err, keyfile.ErrTypeMismatch)
}

func TestBind_MissingGroup(t *testing.T) {
	store := parse(t, t.TempDir(), "[property]\nbatch-size=1\n")

	_, err := Bind(newTarget(), store, TrackerGroup, TrackerSetters())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, keyfile.ErrKeyNotFound)
}

func TestBind_PropertyRejectedByStage(t *testing.T) {
	store := parse(t, t.TempDir(), "[tracker]\ntracker-width=640\n")
	target := newTarget()
	target.reject = "tracker-width"

	_, err := Bind(target, store, TrackerGroup, TrackerSetters())
	assert.ErrorIs(t, err, ErrPropertyRejected)
}

func TestBind_PathsAndBool(t *testing.T) {
	dir := t.TempDir()
	store := parse(t, dir, `[tracker]
ll-config-file=tracker_config.yml
ll-lib-file=/opt/nvidia/deepstream/deepstream/lib/libnvds_nvmultiobjecttracker.so
enable-batch-process=1
`)
	target := newTarget()

	_, err := Bind(target, store, TrackerGroup, TrackerSetters())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "tracker_config.yml"), target.props["ll-config-file"])
	assert.Equal(t, "/opt/nvidia/deepstream/deepstream/lib/libnvds_nvmultiobjecttracker.so", target.props["ll-lib-file"])
	assert.Equal(t, true, target.props["enable-batch-process"])
}

func TestBind_Idempotent(t *testing.T) {
	inputs := []string{
		"[tracker]\ntracker-width=640\ntracker-height=480\ngpu-id=0\n",
		"[tracker]\ntracker-width=1920\nenable-batch-process=0\nll-config-file=a.yml\nfoo=bar\n",
		"[tracker]\n",
	}

	for _, in := range inputs {
		store := parse(t, t.TempDir(), in)

		first := newTarget()
		r1, err := Bind(first, store, TrackerGroup, TrackerSetters())
		require.NoError(t, err)

		second := newTarget()
		r2, err := Bind(second, store, TrackerGroup, TrackerSetters())
		require.NoError(t, err)

		// Re-binding onto an already configured stage must not change it either.
		r3, err := Bind(first, store, TrackerGroup, TrackerSetters())
		require.NoError(t, err)

		if diff := cmp.Diff(first.props, second.props); diff != "" {
			t.Errorf("property sets differ (-first +second):\n%s", diff)
		}
		if diff := cmp.Diff(r1, r2); diff != "" {
			t.Errorf("results differ (-first +second):\n%s", diff)
		}
		if diff := cmp.Diff(r1, r3); diff != "" {
			t.Errorf("rebind result differs (-first +rebind):\n%s", diff)
		}
	}
}
