// Built-in defaults used when a record is missing or corrupt, and after a
// full reset. The seeded content gives a fresh install something to show.

package keepsake

import "time"

const (
	// DefaultTitle is the brand title shown when none is configured.
	DefaultTitle = "Per te"
	// DefaultSubtitle is the brand subtitle shown when none is configured.
	DefaultSubtitle = "Un posto piccolo, solo nostro."
)

func defaultSettings() Settings {
	return Settings{Title: DefaultTitle, Subtitle: DefaultSubtitle}
}

// DefaultState returns the built-in state of a fresh install. The backup
// importer substitutes it piecewise for collections missing from a snapshot.
func DefaultState(now time.Time) State {
	return State{
		Settings: defaultSettings(),
		Jar:      defaultJar(now),
		Museum:   defaultMuseum(now),
		Journal:  defaultJournal(now),
		Messages: []Message{},
	}
}

func defaultJar(now time.Time) []JarNote {
	at := nowISO(now)
	return []JarNote{
		{ID: newID(), Text: "Se sei qui, vuol dire che volevi un pensiero piccolo ma vero.", CreatedAt: at},
		{ID: newID(), Text: "Oggi: non devi meritarti niente per essere voluta bene.", CreatedAt: at},
		{ID: newID(), Text: "Un bigliettino al giorno, per ricordarti che ci sono.", CreatedAt: at},
	}
}

func defaultMuseum(now time.Time) []Entry {
	at := nowISO(now)
	return []Entry{{
		ID:        newID(),
		Date:      dayISO(now),
		Title:     "Il giorno in cui…",
		Text:      "Scrivi qui un ricordo breve.",
		PhotoIDs:  []string{},
		CreatedAt: at,
		UpdatedAt: at,
	}}
}

func defaultJournal(now time.Time) []Entry {
	at := nowISO(now)
	return []Entry{{
		ID:        newID(),
		Date:      dayISO(now),
		Title:     "Una cosa bella",
		Text:      "Scrivi qui una cosa bella che avete fatto insieme.",
		PhotoIDs:  []string{},
		CreatedAt: at,
		UpdatedAt: at,
	}}
}
