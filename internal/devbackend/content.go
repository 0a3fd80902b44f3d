package devbackend

import (
	"sync"
	"time"

	"github.com/matthew-kal/SC---FRONTEND/internal/domain"
)

// Catalogue is the static education content served to patients.
type Catalogue struct {
	Categories    []domain.Category
	Subcategories map[int][]domain.Subcategory
	Modules       map[[2]int][]domain.Module
	General       []domain.Module
	Tasks         []domain.Task
	Quotes        []string
}

// DefaultCatalogue is a small catalogue for local development.
func DefaultCatalogue() *Catalogue {
	return &Catalogue{
		Categories: []domain.Category{
			{ID: 1, Name: "Before Surgery", Icon: "medkit"},
			{ID: 2, Name: "Recovery", Icon: "heart"},
		},
		Subcategories: map[int][]domain.Subcategory{
			1: {{ID: 1, Name: "Preparing"}, {ID: 2, Name: "Anxiety"}},
			2: {{ID: 3, Name: "Breathing"}, {ID: 4, Name: "Movement"}},
		},
		Modules: map[[2]int][]domain.Module{
			{1, 1}: {{ID: 101, Title: "What to pack", URL: "https://media.example.com/pack.mp4", MediaType: "video"}},
			{1, 2}: {{ID: 102, Title: "Calm before the OR", URL: "https://media.example.com/calm.mp3", MediaType: "audio"}},
			{2, 3}: {{ID: 103, Title: "Box breathing", URL: "https://media.example.com/box.mp4", MediaType: "video"}},
			{2, 4}: {{ID: 104, Title: "First walk", URL: "https://media.example.com/walk.mp4", MediaType: "video"}},
		},
		General: []domain.Module{
			{ID: 201, Title: "Welcome to SurgiCalm", URL: "https://media.example.com/welcome.mp4", MediaType: "video"},
			{ID: 202, Title: "Sleep after surgery", URL: "https://media.example.com/sleep.mp3", MediaType: "audio"},
		},
		Tasks: []domain.Task{
			{ID: 301, Title: "Drink a glass of water"},
			{ID: 302, Title: "Take a short walk"},
		},
		Quotes: []string{"One step at a time.", "Breathe in calm, breathe out tension."},
	}
}

func (c *Catalogue) hasGeneralVideo(id int) bool {
	for _, m := range c.General {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (c *Catalogue) hasTask(id int) bool {
	for _, t := range c.Tasks {
		if t.ID == id {
			return true
		}
	}
	return false
}

type completion struct {
	itemID int
	isTask bool
	at     time.Time
}

// ProgressTracker records completed videos and tasks per account.
type ProgressTracker struct {
	mu          sync.Mutex
	completions map[int64][]completion
	now         func() time.Time
}

func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{completions: make(map[int64][]completion), now: time.Now}
}

// Complete records that accountID finished an item today. Repeats on the
// same day are ignored.
func (p *ProgressTracker) Complete(accountID int64, itemID int, isTask bool) {
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.completions[accountID] {
		if c.itemID == itemID && c.isTask == isTask && sameDay(c.at, now) {
			return
		}
	}
	p.completions[accountID] = append(p.completions[accountID], completion{itemID: itemID, isTask: isTask, at: now})
}

// CompletedToday reports whether the item was finished today.
func (p *ProgressTracker) CompletedToday(accountID int64, itemID int, isTask bool) bool {
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.completions[accountID] {
		if c.itemID == itemID && c.isTask == isTask && sameDay(c.at, now) {
			return true
		}
	}
	return false
}

// WeekData counts video completions per weekday of the current week.
func (p *ProgressTracker) WeekData(accountID int64) domain.WeekData {
	now := p.now()
	weekStart := startOfWeek(now)

	p.mu.Lock()
	defer p.mu.Unlock()

	var data domain.WeekData
	for _, c := range p.completions[accountID] {
		if c.isTask {
			continue
		}
		data.AllTime++
		if c.at.Before(weekStart) {
			continue
		}
		data.Week++
		switch c.at.Weekday() {
		case time.Monday:
			data.Mon++
		case time.Tuesday:
			data.Tues++
		case time.Wednesday:
			data.Wed++
		case time.Thursday:
			data.Thur++
		case time.Friday:
			data.Fri++
		case time.Saturday:
			data.Sat++
		case time.Sunday:
			data.Sun++
		}
	}
	return data
}

// Forget drops every record of accountID.
func (p *ProgressTracker) Forget(accountID int64) {
	p.mu.Lock()
	delete(p.completions, accountID)
	p.mu.Unlock()
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// startOfWeek returns midnight of the Monday starting t's week.
func startOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.AddDate(0, 0, -offset).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
