package config

import (
	"fmt"

	"github.com/google/uuid"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptSnapshotKey returns the durable attempt store key for a user's
// attempt at an assessment. Derived deterministically so at most one durable
// record exists per (user, assessment) pair.
func (r *CacheKeyStruct) AttemptSnapshotKey(userID int, assessmentID uuid.UUID) string {
	return fmt.Sprintf("user:%d:assessment:%s:attempt", userID, assessmentID)
}

// DefinitionKey returns the cache key for a fetched assessment definition.
func (r *CacheKeyStruct) DefinitionKey(assessmentID uuid.UUID) string {
	return fmt.Sprintf("assessment:%s:definition", assessmentID)
}

// OutcomeKey returns the cache key for the most recent submission outcome of
// a user's attempt, kept so "already submitted" can surface the prior result.
func (r *CacheKeyStruct) OutcomeKey(userID int, assessmentID uuid.UUID) string {
	return fmt.Sprintf("user:%d:assessment:%s:outcome", userID, assessmentID)
}

var CacheKey = NewCacheKeyStruct()
