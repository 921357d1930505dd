// Package models defines the core domain entities for the deal-watcher
// service: deals observed on the source site, their time-series history,
// and the dynamic configuration the scoring pipeline reads.
package models

import (
	"errors"
	"time"
)

// Deal is one distinct listing, identified by its canonical URL.
type Deal struct {
	ID                string
	URL               string
	Title             string
	Merchant          string
	ImageURL          string
	Price             float64
	Discount          float64
	Coupon            string
	Description       string
	PublishedAt       time.Time
	Expired           bool
	MaxRatingNotified int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Validate checks that all Deal fields hold sane values.
func (d *Deal) Validate() error {
	if d.URL == "" {
		return errors.New("deal URL must not be empty")
	}
	if d.Title == "" {
		return errors.New("deal title must not be empty")
	}
	if d.Price < 0 {
		return errors.New("deal price must not be negative")
	}
	if d.Discount < 0 {
		return errors.New("deal discount must not be negative")
	}
	if d.MaxRatingNotified < 0 || d.MaxRatingNotified > 4 {
		return errors.New("max rating notified must be between 0 and 4")
	}
	if d.PublishedAt.IsZero() {
		return errors.New("published_at must be set")
	}
	return nil
}

// RawDeal is the scraper's DTO: one record as yielded from the source
// site, before it is persisted or scored.
type RawDeal struct {
	URL         string
	Title       string
	Merchant    string
	ImageURL    string
	Price       float64
	Discount    float64
	Coupon      string
	Description string
	Temperature float64
	PublishedAt time.Time
	Expired     bool
}

// Validate checks the minimal fields required for a RawDeal to be usable:
// a non-empty URL and a non-negative temperature. A zero temperature is
// accepted, so it cannot tell a missing temperature from 0°.
func (r *RawDeal) Validate() error {
	if r.URL == "" {
		return errors.New("raw deal URL must not be empty")
	}
	if r.Temperature < 0 {
		return errors.New("raw deal temperature must not be negative")
	}
	return nil
}

// DealHistory is one append-only time-series row recording a deal's
// state as observed during a single cycle.
type DealHistory struct {
	ID                  string
	DealID              string
	ObservedAt          time.Time
	Temperature         float64
	HoursSincePublished float64
	Velocity            float64
	ViralScore          float64
	FinalScore          float64
}

// Validate checks that a DealHistory row's numeric fields are sane.
func (h *DealHistory) Validate() error {
	if h.DealID == "" {
		return errors.New("history row must reference a deal")
	}
	if h.Temperature < 0 {
		return errors.New("temperature must not be negative")
	}
	if h.HoursSincePublished < 0 {
		return errors.New("hours since published must not be negative")
	}
	if h.ViralScore < 0 {
		return errors.New("viral score must not be negative")
	}
	if h.FinalScore < 0 {
		return errors.New("final score must not be negative")
	}
	return nil
}
