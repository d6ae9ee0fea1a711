package analytics

import (
	"time"
)

// Forms names the form codes the reports search for
type Forms struct {
	Registration    string `mapstructure:"registration"`
	RegistrationLMP string `mapstructure:"registration_lmp"`
	Visit           string `mapstructure:"visit"`
	Delivery        string `mapstructure:"delivery"`
}

// Settings are the read-only knobs of the engine, injected at construction
type Settings struct {
	Index               string
	BatchSize           int
	Forms               Forms
	UpcomingDays        int
	MissedDays          int
	DueDatesWeeks       int
	BirthsLookbackWeeks int
	Location            *time.Location
}

// DefaultSettings returns the settings used when nothing is configured
func DefaultSettings() Settings {
	return Settings{
		Index:     "data_records",
		BatchSize: DefaultBatchSize,
		Forms: Forms{
			Registration:    "R",
			RegistrationLMP: "P",
			Visit:           "V",
			Delivery:        "D",
		},
		UpcomingDays:        5,
		MissedDays:          14,
		DueDatesWeeks:       2,
		BirthsLookbackWeeks: 52,
		Location:            time.UTC,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.Index == "" {
		s.Index = d.Index
	}
	if s.BatchSize <= 0 {
		s.BatchSize = d.BatchSize
	}
	if s.Forms.Registration == "" {
		s.Forms.Registration = d.Forms.Registration
	}
	if s.Forms.RegistrationLMP == "" {
		s.Forms.RegistrationLMP = d.Forms.RegistrationLMP
	}
	if s.Forms.Visit == "" {
		s.Forms.Visit = d.Forms.Visit
	}
	if s.Forms.Delivery == "" {
		s.Forms.Delivery = d.Forms.Delivery
	}
	if s.UpcomingDays <= 0 {
		s.UpcomingDays = d.UpcomingDays
	}
	if s.MissedDays <= 0 {
		s.MissedDays = d.MissedDays
	}
	if s.DueDatesWeeks <= 0 {
		s.DueDatesWeeks = d.DueDatesWeeks
	}
	if s.BirthsLookbackWeeks <= 0 {
		s.BirthsLookbackWeeks = d.BirthsLookbackWeeks
	}
	if s.Location == nil {
		s.Location = d.Location
	}
	return s
}

// Option configures an Engine
type Option func(*Engine)

// WithClock replaces the wall clock used to anchor report windows
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine compiles, paginates and aggregates the analytics reports.
// It keeps no state between calls.
type Engine struct {
	searcher Searcher
	settings Settings
	now      func() time.Time
}

// NewEngine creates an engine over the given index searcher
func NewEngine(searcher Searcher, settings Settings, opts ...Option) *Engine {
	e := &Engine{
		searcher: searcher,
		settings: settings.withDefaults(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Settings returns the effective settings
func (e *Engine) Settings() Settings {
	return e.settings
}

func (e *Engine) clock() time.Time {
	return e.now().In(e.settings.Location)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (e *Engine) registrationForms() []string {
	return []string{e.settings.Forms.Registration, e.settings.Forms.RegistrationLMP}
}
