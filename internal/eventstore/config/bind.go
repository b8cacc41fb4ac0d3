package config

import (
	"github.com/aevon-lab/eventstore/internal/eventstore"
)

// BuildSchema builds an eventstore.Schema from the config, falling back to
// eventstore.DefaultSchema's column names — only the table names are
// operator-configurable.
func (c *Config) BuildSchema() eventstore.Schema {
	s := eventstore.DefaultSchema()
	if c.Schema.EventTable != "" {
		s.EventTable = c.Schema.EventTable
	}
	if c.Schema.SnapshotTable != "" {
		s.SnapshotTable = c.Schema.SnapshotTable
	}
	return s
}

// Options builds an eventstore.Options from the config, falling back to
// eventstore.DefaultOptions field-by-field for anything left at zero value.
func (c *Config) Options() eventstore.Options {
	return buildOptions(c.EventStore)
}

func buildOptions(ec EventStoreConfig) eventstore.Options {
	o := eventstore.DefaultOptions()
	if ec.BatchSize > 0 {
		o.BatchSize = ec.BatchSize
	}
	if ec.MaxGapOffset > 0 {
		o.MaxGapOffset = ec.MaxGapOffset
	}
	if ec.LowestGlobalSequence > 0 {
		o.LowestGlobalSequence = ec.LowestGlobalSequence
	}
	if ec.GapTimeoutMS > 0 {
		o.GapTimeoutMS = ec.GapTimeoutMS
	}
	if ec.GapCleaningThreshold > 0 {
		o.GapCleaningThreshold = ec.GapCleaningThreshold
	}
	switch ec.PayloadDataType {
	case "bytes":
		o.PayloadDataType = eventstore.PayloadDataTypeBytes
	case "object":
		o.PayloadDataType = eventstore.PayloadDataTypeObject
	}
	return o
}
