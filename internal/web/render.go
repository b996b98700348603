package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/rewards"
	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	pageLogin     = "login.html"
	pageRegister  = "register.html"
	pageLookup    = "lookup.html"
	pageDashboard = "dashboard.html"
)

type pages map[string]*template.Template

var templateFuncs = template.FuncMap{
	"datetime": func(t time.Time) string {
		return t.Local().Format("Jan 2, 2006 3:04 PM")
	},
	"formatPhone": func(phone string) string {
		if len(phone) != 10 {
			return phone
		}
		return fmt.Sprintf("(%s) %s-%s", phone[:3], phone[3:6], phone[6:])
	},
}

func loadPages() (pages, error) {
	out := make(pages)
	for _, name := range []string{pageLogin, pageRegister, pageLookup, pageDashboard} {
		tmpl, err := template.New("layout.html").Funcs(templateFuncs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		out[name] = tmpl
	}
	return out, nil
}

// page carries what the layout needs.
type page struct {
	Title    string
	Operator string
	Error    string
	Notice   string
	Errors   map[string]string
}

type loginView struct {
	page
	Email string
}

type lookupView struct {
	page
	Phone    string
	Customer customerForm
	ShowAdd  bool
}

type rewardOption struct {
	rewards.AvailableReward
	Affordable bool
}

type dashboardView struct {
	page
	Customer *rewards.CustomerRewards
	Empty    string
	Awards   []award
	Rewards  []rewardOption
	Activity []rewards.ActivityRecord
}

func (s *Server) basePage(r *http.Request, title string) page {
	p := page{Title: title, Errors: map[string]string{}}
	if scope := scopeFrom(r.Context()); scope != nil {
		if id, ok := scope.store.Identity(); ok {
			p.Operator = id.Email
		}
	}
	return p
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.logger.Error("unknown page", zap.String("page", name))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		s.requestLogger(r).Error("render page", zap.String("page", name), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// identityOf is the signed-in operator for r, if any.
func identityOf(r *http.Request) (session.Identity, bool) {
	scope := scopeFrom(r.Context())
	if scope == nil {
		return session.Identity{}, false
	}
	return scope.store.Identity()
}
