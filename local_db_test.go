package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerificationCRUD(t *testing.T) {
	db := newTestDB(t)

	first, err := CreateVerification(db, "first")
	require.NoError(t, err)
	second, err := CreateVerification(db, "second")
	require.NoError(t, err)
	assert.NotZero(t, first.ID)
	assert.Equal(t, statusPending, first.Status)
	assert.Equal(t, fullScope, first.OCRScope)

	list, err := ListVerifications(db)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")

	require.NoError(t, RenameVerification(db, first.ID, "renamed"))
	got, err := GetVerification(db, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)

	got.ObservedJSON = `{"a":{"content":"x"}}`
	got.Status = statusCompleted
	require.NoError(t, db.Save(got).Error)
	got, err = GetVerification(db, first.ID)
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"content":"x"}}`, got.ObservedJSON)
	assert.Equal(t, statusCompleted, got.Status)

	require.NoError(t, DeleteVerification(db, first.ID))
	_, err = GetVerification(db, first.ID)
	assert.ErrorIs(t, err, ErrVerificationNotFound)
	assert.ErrorIs(t, DeleteVerification(db, first.ID), ErrVerificationNotFound)
	assert.ErrorIs(t, RenameVerification(db, first.ID, "x"), ErrVerificationNotFound)
}

func TestUpdateVerificationInputsKeepsResults(t *testing.T) {
	db := newTestDB(t)
	v, err := CreateVerification(db, "inputs")
	require.NoError(t, err)

	v.ReferenceJSON = `{"a":{"content":"x"}}`
	v.DifferencesJSON = `{"invalid_titles":[],"differences":{}}`
	v.Status = statusCompleted
	require.NoError(t, db.Save(v).Error)

	// a copy loaded before the results were written
	stale := &Verification{ID: v.ID, Name: v.Name, OCRScope: fullScope, Status: statusPending}
	stale.ImagePath, stale.ImageHash = "img.png", "i2"

	require.NoError(t, UpdateVerificationInputs(db, stale, false))
	got, err := GetVerification(db, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "i2", got.ImageHash)
	assert.Equal(t, `{"a":{"content":"x"}}`, got.ReferenceJSON)
	assert.Equal(t, statusCompleted, got.Status)

	require.NoError(t, UpdateVerificationInputs(db, stale, true))
	got, err = GetVerification(db, v.ID)
	require.NoError(t, err)
	assert.Empty(t, got.DifferencesJSON)
	assert.Equal(t, statusPending, got.Status)
	assert.Equal(t, `{"a":{"content":"x"}}`, got.ReferenceJSON)

	assert.ErrorIs(t, UpdateVerificationInputs(db, &Verification{ID: 999}, true), ErrVerificationNotFound)
}

func TestUpdateVerificationResultGuard(t *testing.T) {
	db := newTestDB(t)
	v, err := CreateVerification(db, "guarded")
	require.NoError(t, err)
	v.ImageHash = "new"
	require.NoError(t, db.Save(v).Error)

	err = UpdateVerificationResult(db, v.ID, map[string]any{"image_hash": "old"}, map[string]any{"observed_json": "{}"})
	assert.ErrorIs(t, err, errInputsChanged)
	got, err := GetVerification(db, v.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ObservedJSON)

	require.NoError(t, UpdateVerificationResult(db, v.ID, map[string]any{"image_hash": "new"}, map[string]any{"observed_json": "{}"}))
	got, err = GetVerification(db, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "{}", got.ObservedJSON)
}

func TestInitializeDBUnsupportedDriver(t *testing.T) {
	_, err := InitializeDB("mysql", "")
	assert.Error(t, err)

	_, err = InitializeDB("postgres", "")
	assert.Error(t, err)
}
