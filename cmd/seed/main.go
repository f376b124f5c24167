package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"nexus-billing/internal/config"
	"nexus-billing/internal/domain"
	"nexus-billing/internal/domain/model"
	"nexus-billing/internal/infra/api"
	pg "nexus-billing/internal/infra/db/postgres"
)

var catalog = []struct {
	ID         int64
	Title      string
	Category   string
	Consultant string
	Duration   string
	Price      string
}{
	{1, "Complete Settlement Package", "Settlement & Integration", "EXPERT 1", "Full package", "$299"},
	{2, "Resume & LinkedIn Optimization", "Jobs & Career Coaching", "EXPERT 2", "2 sessions", "$125"},
	{3, "Career Coaching & Interview Prep", "Jobs & Career Coaching", "EXPERT 3", "Hourly", "$150"},
	{4, "Business Registration & Setup", "Startup & Business", "EXPERT 4", "Full package", "$500"},
	{5, "Startup Market Research", "Startup & Business", "EXPERT 5", "3 sessions", "$350"},
	{6, "Immigration Consultant Matching", "Immigration Agency Referral", "EXPERT 6", "Consultation", "$Free matching"},
	{7, "Housing Search Assistance", "Local & Household Support", "EXPERT 7", "Hourly", "$75"},
	{8, "Canadian Banking Setup", "Financial Setup", "EXPERT 8", "Single session", "$99"},
}

func main() {
	adminID := flag.String("mint-admin", "", "print an admin token for this user id and exit")
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if *adminID != "" {
		tok, err := api.NewAuthenticator(cfg.Auth).Mint(*adminID, "", "", api.RoleAdmin)
		if err != nil {
			log.Fatalf("mint: %v", err)
		}
		fmt.Println(tok)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.Connect(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	repo := pg.NewServiceRepo(pool)
	for _, c := range catalog {
		s, err := model.NewService(c.ID, c.Title, c.Category, c.Consultant, c.Duration, c.Price)
		if errors.Is(err, domain.ErrInvalidPrice) {
			fmt.Printf("skipped: %s (price %q is not payable)\n", c.Title, c.Price)
			continue
		}
		if err != nil {
			log.Fatalf("service %d: %v", c.ID, err)
		}
		if err := repo.Save(ctx, nil, s); err != nil {
			log.Fatalf("save service %d: %v", c.ID, err)
		}
		fmt.Printf("seeded: #%d %s (%s)\n", s.ServiceID, s.Title, s.Price)
	}
	fmt.Println("catalog seeded")
}
