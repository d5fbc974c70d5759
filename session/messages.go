package session

import (
	"math/rand/v2"
	"sync"
)

// LoadingMessages werden während einer laufenden Suche rotierend angezeigt.
var LoadingMessages = []string{
	"Scanning the archives...",
	"Consulting the scholars...",
	"Decoding ancient manuscripts...",
	"Interviewing time-traveling historians...",
	"Calibrating the citation compass...",
	"Summoning the spirits of academia...",
	"Traversing the knowledge multiverse...",
	"Unleashing the citation kraken...",
	"Brewing a potent citation potion...",
	"Hacking the matrix of knowledge...",
	"Translating alien research papers...",
	"Channeling the ghosts of scientists past...",
	"Decrypting the Rosetta Stone of citations...",
	"Exploring the Library of Alexandria's backup...",
	"Consulting the Oracle of Academic Wisdom...",
	"Diving into the depths of the citation ocean...",
	"Riding the waves of intellectual discovery...",
	"Assembling the Avengers of Academia...",
	"Charging up the flux capacitor of knowledge...",
	"Unleashing the citation butterfly effect...",
}

// MessageSource liefert die nächste Lade-Nachricht.
type MessageSource interface {
	Next() string
}

// RandomMessages zieht gleichverteilt aus einer festen Liste.
type RandomMessages struct {
	mu       sync.Mutex
	messages []string
	rng      *rand.Rand
}

// NewRandomMessages erstellt eine Zufallsquelle. Ist rng nil, wird ein zufällig geseedeter Generator verwendet.
func NewRandomMessages(messages []string, rng *rand.Rand) *RandomMessages {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &RandomMessages{messages: messages, rng: rng}
}

func (r *RandomMessages) Next() string {
	if len(r.messages) == 0 {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messages[r.rng.IntN(len(r.messages))]
}

// CycleMessages liefert die Nachrichten der Reihe nach (deterministisch, z.B. für Tests).
type CycleMessages struct {
	mu       sync.Mutex
	messages []string
	next     int
}

func NewCycleMessages(messages ...string) *CycleMessages {
	return &CycleMessages{messages: messages}
}

func (c *CycleMessages) Next() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) == 0 {
		return ""
	}
	m := c.messages[c.next%len(c.messages)]
	c.next++
	return m
}
