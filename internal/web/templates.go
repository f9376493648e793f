package web

import (
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/justestif/go-mood-tunes/internal/fuzzy"
	"github.com/justestif/go-mood-tunes/internal/recommend"
)

// Templates renders full pages and the HTMX fragments they swap in.
type Templates struct {
	pages    map[string]*template.Template
	partials *template.Template
	funcs    template.FuncMap
}

// NewTemplates parses layouts/, pages/ and partials/ from templatesFS.
// Every partial file must define a template named after the file.
func NewTemplates(templatesFS fs.FS) (*Templates, error) {
	t := &Templates{
		pages: make(map[string]*template.Template),
		funcs: defaultFuncs(),
	}

	if err := t.load(templatesFS); err != nil {
		return nil, err
	}

	return t, nil
}

// Render writes page inside the base layout.
func (t *Templates) Render(w io.Writer, page string, data any) error {
	tmpl, ok := t.pages[page]
	if !ok {
		return fmt.Errorf("template %q not found", page)
	}
	return tmpl.ExecuteTemplate(w, "base", data)
}

// RenderPartial writes a single fragment without the layout.
func (t *Templates) RenderPartial(w io.Writer, partial string, data any) error {
	if t.partials == nil || t.partials.Lookup(partial) == nil {
		return fmt.Errorf("partial %q not found", partial)
	}
	return t.partials.ExecuteTemplate(w, partial, data)
}

func (t *Templates) load(templatesFS fs.FS) error {
	glob := func(pattern string) ([]string, error) {
		matches, err := fs.Glob(templatesFS, pattern)
		if err != nil {
			return nil, fmt.Errorf("finding %s: %w", pattern, err)
		}
		return matches, nil
	}

	layouts, err := glob("layouts/*.html")
	if err != nil {
		return err
	}
	partials, err := glob("partials/*.html")
	if err != nil {
		return err
	}
	pages, err := glob("pages/*.html")
	if err != nil {
		return err
	}

	if len(partials) > 0 {
		set, err := template.New("partials").Funcs(t.funcs).ParseFS(templatesFS, partials...)
		if err != nil {
			return fmt.Errorf("parsing partials: %w", err)
		}
		for _, p := range partials {
			if name := templateName(p); set.Lookup(name) == nil {
				return fmt.Errorf("partial %s does not define %q", p, name)
			}
		}
		t.partials = set
	}

	for _, page := range pages {
		name := templateName(page)
		files := append(append([]string{page}, layouts...), partials...)

		tmpl, err := template.New(name).Funcs(t.funcs).ParseFS(templatesFS, files...)
		if err != nil {
			return fmt.Errorf("parsing page %s: %w", name, err)
		}
		if tmpl.Lookup("base") == nil {
			return fmt.Errorf("page %s: no base layout", name)
		}
		t.pages[name] = tmpl
	}

	return nil
}

// templateName maps "partials/preview.html" to "preview".
func templateName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// defaultFuncs returns the default template functions.
func defaultFuncs() template.FuncMap {
	return template.FuncMap{
		// categoryColor returns an HSL color for a category label.
		// Calmer categories sit at cool indigo, energetic ones at warm orange.
		"categoryColor": func(label string) template.CSS {
			c, err := fuzzy.ParseCategory(label)
			if err != nil {
				return "hsl(0, 0%, 60%)"
			}
			energy := float64(c) / float64(len(fuzzy.Categories())-1)
			hue := 264 - (energy * 229)
			saturation := 60 + (energy * 30)
			lightness := 45 + (energy * 10)
			return template.CSS(fmt.Sprintf("hsl(%.0f, %.0f%%, %.0f%%)", hue, saturation, lightness))
		},

		// percent converts a membership score to a bar width, clamped to 0-100.
		"percent": func(score float64) string {
			return fmt.Sprintf("%.0f", math.Min(100, math.Max(0, score*100)))
		},

		// score formats a membership score with two decimals.
		"score": func(score float64) string {
			return fmt.Sprintf("%.2f", score)
		},

		// formatHour formats a fractional hour as "14:30".
		"formatHour": func(hour float64) string {
			h := int(hour)
			m := int((hour - float64(h)) * 60)
			return fmt.Sprintf("%02d:%02d", h, m)
		},

		// formatDate formats a time as "Jan 2, 15:04"
		"formatDate": func(t time.Time) string {
			return t.Format("Jan 2, 15:04")
		},

		"join": strings.Join,

		// add adds two integers (for 1-based indexing in loops)
		"add": func(a, b int) int {
			return a + b
		},
	}
}

// PageData contains common data passed to all page templates.
type PageData struct {
	Title       string
	User        *UserData
	CurrentPath string
}

// UserData contains authenticated user information.
type UserData struct {
	ID   string
	Name string
}

// HomePageData contains data for the home page template.
type HomePageData struct {
	PageData
	Authenticated bool
	LoginEnabled  bool
	Sliders       SliderData
	History       []MoodLogData
}

// SliderData holds the initial slider positions.
type SliderData struct {
	HeartRate float64
	Activity  float64
	Mood      float64
	Count     int
}

// MoodLogData is one row of a user's mood history.
type MoodLogData struct {
	Category  string
	HeartRate float64
	Activity  float64
	Mood      float64
	CreatedAt time.Time
}

// MembershipData is one category score for display.
type MembershipData struct {
	Label string
	Score float64
}

// RecommendationsData contains data for the recommendations partial.
type RecommendationsData struct {
	Category    string
	TimeOfDay   float64
	Memberships []MembershipData
	Songs       []recommend.Song
}

// PreviewData contains data for the preview partial.
type PreviewData struct {
	Top         string
	Classified  string
	Disagrees   bool
	Memberships []MembershipData
}

// membershipData lists scores in category priority order.
func membershipData(m fuzzy.Memberships) []MembershipData {
	out := make([]MembershipData, 0, len(m))
	for _, c := range fuzzy.Categories() {
		out = append(out, MembershipData{Label: c.String(), Score: m.Get(c)})
	}
	return out
}
