package inmemdb

import (
	"sync"

	"github.com/trezcool/flowboard/core/workflow"
)

// DB keeps the workflow tables in memory. One lock guards all tables so that cascades are atomic.
type DB struct {
	mu          sync.RWMutex
	workflows   map[string]*workflow.Workflow
	stages      map[string]*workflow.Stage
	transitions map[string]*workflow.Transition
	analytics   map[string]*workflow.AnalyticsRecord
}

func Open() *DB {
	return &DB{
		workflows:   make(map[string]*workflow.Workflow),
		stages:      make(map[string]*workflow.Stage),
		transitions: make(map[string]*workflow.Transition),
		analytics:   make(map[string]*workflow.AnalyticsRecord),
	}
}
