// Package testdata generates realistic enquiries and agents for seeding and tests.
package testdata

import (
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/jordanlanch/leaddesk/pkg/enquiries"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/jordanlanch/leaddesk/pkg/users"
)

// GeneratorConfig configures enquiry generation
type GeneratorConfig struct {
	Seed            int64
	EmailChance     float64 // 0.0-1.0
	CompanyChance   float64 // applied to B2B enquiries only
	DuplicateChance float64 // probability of reusing an earlier phone number
}

// DefaultGeneratorConfig returns a mix close to real inbound traffic.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Seed:            1,
		EmailChance:     0.6,
		CompanyChance:   0.9,
		DuplicateChance: 0.1,
	}
}

// Cities enquiries come from. Phone numbers are Indian mobiles to match the default region.
var Cities = []string{
	"Mumbai", "Delhi", "Bengaluru", "Hyderabad", "Chennai",
	"Pune", "Kolkata", "Ahmedabad", "Jaipur", "Kochi",
}

var (
	sources  = []string{"Website", "Referral", "Trade Show", "Cold Call", "Partner"}
	channels = []string{"Phone", "Email", "WhatsApp", "Walk-in", "Web Form"}
	teams    = []string{"North", "South", "West", "Enterprise"}

	profileDescriptions = map[models.Profile][]string{
		models.ProfileProject:      {"Turnkey installation for new office block", "Fit-out for a %d-seat facility"},
		models.ProfileProduct:      {"Quote for %d units", "Price list and lead times"},
		models.ProfileAMCService:   {"Annual maintenance contract renewal", "AMC for %d installed units"},
		models.ProfileComplaint:    {"Unit stopped working after %d days", "Repeated fault on last service"},
		models.ProfileJob:          {"Applying for field technician role", "Internship enquiry"},
		models.ProfileInfoRequest:  {"Brochure request", "Wants a product demo"},
		models.ProfileInstallation: {"Site visit for installation", "Installation of %d units"},
	}
)

// Generator produces deterministic fixtures for a given seed.
type Generator struct {
	cfg    GeneratorConfig
	faker  *gofakeit.Faker
	phones []string
}

// NewGenerator creates a generator.
func NewGenerator(cfg GeneratorConfig) *Generator {
	return &Generator{cfg: cfg, faker: gofakeit.New(cfg.Seed)}
}

// Phone returns a fresh 10-digit Indian mobile number.
func (g *Generator) Phone() string {
	return g.faker.Numerify("9#########")
}

// Enquiry returns one create request. Profile and priority are sometimes left blank
// so intake defaults get exercised.
func (g *Generator) Enquiry() enquiries.CreateRequest {
	f := g.faker

	leadType := models.LeadTypes[f.Number(0, len(models.LeadTypes)-1)]
	req := enquiries.CreateRequest{
		CustomerName: f.Name(),
		Phone:        g.pickPhone(),
		City:         f.RandomString(Cities),
		TypeOfLead:   leadType,
		SourceType:   f.RandomString(sources),
		ChannelType:  f.RandomString(channels),
	}

	if f.Float64Range(0, 1) < g.cfg.EmailChance {
		req.Email = strings.ToLower(f.Email())
	}
	if leadType == models.LeadTypeB2B && f.Float64Range(0, 1) < g.cfg.CompanyChance {
		req.Company = f.Company()
	}
	if f.Bool() {
		req.Profile = models.Profiles[f.Number(0, len(models.Profiles)-1)]
		req.Description = g.describe(req.Profile)
	}
	if f.Bool() {
		req.Priority = models.Priorities[f.Number(0, len(models.Priorities)-1)]
	}
	if leadType == models.LeadTypeB2B {
		req.EstimatedValue = float64(f.Number(10, 500)) * 1000
	}
	return req
}

// Enquiries returns n create requests.
func (g *Generator) Enquiries(n int) []enquiries.CreateRequest {
	out := make([]enquiries.CreateRequest, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.Enquiry())
	}
	return out
}

// User returns an agent with the given role.
func (g *Generator) User(role models.Role) users.CreateUserRequest {
	f := g.faker
	first, last := f.FirstName(), f.LastName()
	return users.CreateUserRequest{
		Name:  first + " " + last,
		Email: strings.ToLower(fmt.Sprintf("%s.%s.%d@leaddesk.local", first, last, f.Number(100, 999))),
		Phone: g.Phone(),
		Role:  role,
		Team:  f.RandomString(teams),
	}
}

func (g *Generator) pickPhone() string {
	if len(g.phones) > 0 && g.faker.Float64Range(0, 1) < g.cfg.DuplicateChance {
		return g.phones[g.faker.Number(0, len(g.phones)-1)]
	}
	p := g.Phone()
	g.phones = append(g.phones, p)
	return p
}

func (g *Generator) describe(p models.Profile) string {
	options, ok := profileDescriptions[p]
	if !ok {
		return g.faker.Sentence(8)
	}
	desc := options[g.faker.Number(0, len(options)-1)]
	if strings.Contains(desc, "%d") {
		desc = fmt.Sprintf(desc, g.faker.Number(2, 50))
	}
	return desc
}
