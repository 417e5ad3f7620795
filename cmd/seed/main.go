// Command seed fills a development database with agents, assignment rules and enquiries.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/jordanlanch/leaddesk/config"
	"github.com/jordanlanch/leaddesk/pkg/container"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/jordanlanch/leaddesk/pkg/rules"
	"github.com/jordanlanch/leaddesk/pkg/testdata"
)

func main() {
	count := flag.Int("count", 200, "number of enquiries to create")
	agents := flag.Int("agents", 4, "number of sales agents to create")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	cfg.Jobs.Enabled = false
	cfg.Hooks.Async = false

	appLog := logger.New(logger.Config{Level: cfg.Log.Level, Encoding: cfg.Log.Encoding})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	c, err := container.New(ctx, cfg, appLog)
	if err != nil {
		appLog.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}
	defer func() { _ = c.Close(ctx) }()

	if err := run(ctx, c, *count, *agents, *seed); err != nil {
		appLog.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c *container.Container, count, agentCount int, seed int64) error {
	genCfg := testdata.DefaultGeneratorConfig()
	genCfg.Seed = seed
	gen := testdata.NewGenerator(genCfg)

	admin, err := c.Users.Create(ctx, gen.User(models.RoleAdmin))
	if err != nil {
		return err
	}
	head, err := c.Users.Create(ctx, gen.User(models.RoleSalesHead))
	if err != nil {
		return err
	}

	pool := make([]models.Candidate, 0, agentCount)
	for i := 0; i < agentCount; i++ {
		u, err := c.Users.Create(ctx, gen.User(models.RoleSalesAgent))
		if err != nil {
			return err
		}
		pool = append(pool, models.Candidate{UserID: u.ID, Weight: 1 + i%2, MaxDailyAssignments: 50})
	}

	split := len(pool) / 2
	if split == 0 {
		split = len(pool)
	}
	seedRules := []rules.RuleRequest{
		{
			Name:     "B2B by load",
			Priority: 20,
			RuleType: models.RuleTypeLoadBased,
			Conditions: []models.Condition{
				{Field: "type_of_lead", Operator: models.OpEquals, Value: string(models.LeadTypeB2B)},
			},
			AssignmentTo: pool[:split],
			FallbackUser: &head.ID,
		},
		{
			Name:         "Everyone else",
			Priority:     10,
			RuleType:     models.RuleTypeRoundRobin,
			AssignmentTo: pool[split:],
			FallbackUser: &head.ID,
		},
	}
	for _, req := range seedRules {
		if len(req.AssignmentTo) == 0 {
			continue
		}
		if _, err := c.Rules.Create(ctx, req, admin.ID); err != nil {
			return err
		}
	}

	duplicates := 0
	for _, req := range gen.Enquiries(count) {
		e, err := c.Enquiries.Create(ctx, req, admin.ID)
		if err != nil {
			return err
		}
		if e.IsDuplicate {
			duplicates++
		}
	}

	c.Logger.Info("seed complete",
		"enquiries", count,
		"duplicates", duplicates,
		"agents", agentCount,
		"admin_email", admin.Email)
	return nil
}
