package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotDigestDeterminism(t *testing.T) {
	state := Object{
		"workflow_id":      String("wf-1"),
		"overall_progress": Int(50),
		"completed_at":     Null{},
	}

	d1, err := SnapshotDigest(state)
	require.NoError(t, err)
	d2, err := SnapshotDigest(Object{
		"completed_at":     Null{},
		"overall_progress": Int(50),
		"workflow_id":      String("wf-1"),
	})
	require.NoError(t, err)

	assert.Equal(t, d1, d2, "key insertion order must not matter")
	assert.Len(t, d1, 64, "SHA-256 hex is 64 characters")
}

func TestSnapshotDigestChangesWithContent(t *testing.T) {
	a := MustSnapshotDigest(Object{"overall_progress": Int(50)})
	b := MustSnapshotDigest(Object{"overall_progress": Int(51)})
	assert.NotEqual(t, a, b)
}

func TestUpdateIDIncludesSeq(t *testing.T) {
	update := Object{"description": String("Workflow started")}

	id1, err := UpdateID("wf-1", 1, update)
	require.NoError(t, err)
	id2, err := UpdateID("wf-1", 2, update)
	require.NoError(t, err)
	id3, err := UpdateID("wf-2", 1, update)
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
	assert.NotEqual(t, id1, id3)
}

func TestDomainsDiffer(t *testing.T) {
	data := []byte(`{}`)
	assert.NotEqual(t, hashWithDomain(DomainSnapshot, data), hashWithDomain(DomainUpdate, data))
}
