package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/DukeRupert/fixmatch/internal/auth"
	"github.com/DukeRupert/fixmatch/internal/classify"
	"github.com/DukeRupert/fixmatch/internal/domain"
	"github.com/DukeRupert/fixmatch/internal/matching"
	"github.com/DukeRupert/fixmatch/internal/pricing"
)

var money = message.NewPrinter(language.English)

// =============================================================================
// classify
// =============================================================================

func classifyCmd(v *viper.Viper) *cobra.Command {
	var (
		category string
		urgency  string
		images   int
	)
	cmd := &cobra.Command{
		Use:   "classify <description>",
		Short: "Assess a repair description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			const op = "cli.classify"

			rules, err := loadRules(v)
			if err != nil {
				return err
			}
			c, err := domain.ParseCategory(op, category)
			if err != nil {
				return err
			}
			l, err := domain.ParseLevel(op, urgency)
			if err != nil {
				return err
			}

			result := classify.New(rules).Classify(classify.Input{
				Description: args[0],
				Category:    c,
				Urgency:     l,
				ImageCount:  images,
			})
			if v.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), result)
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"Field", "Value"})
			tw.AppendRows([]table.Row{
				{"Severity", result.Severity},
				{"Complexity", result.Complexity},
				{"Urgency score", result.UrgencyScore},
				{"Estimated minutes", result.EstimatedMinutes},
				{"Estimated cost", money.Sprintf("%d", result.EstimatedCost)},
				{"Confidence", fmt.Sprintf("%.1f", result.Confidence)},
				{"Skills", strings.Join(result.RequiredSkills, ", ")},
				{"Tools", strings.Join(result.RecommendedTools, ", ")},
				{"Risks", strings.Join(result.RiskFactors, ", ")},
			})
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "service category")
	cmd.Flags().StringVar(&urgency, "urgency", "", "low, normal or high")
	cmd.Flags().IntVar(&images, "images", 0, "number of attached photos")
	return cmd
}

// =============================================================================
// quote
// =============================================================================

func quoteCmd(v *viper.Viper) *cobra.Command {
	var (
		category   string
		urgency    string
		address    string
		complexity string
		immediate  bool
		at         string
		distanceKm float64
		demand     float64
	)
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a job against the rate card",
		RunE: func(cmd *cobra.Command, args []string) error {
			const op = "cli.quote"

			card, err := loadRateCard(v)
			if err != nil {
				return err
			}
			c, err := domain.ParseCategory(op, category)
			if err != nil {
				return err
			}
			if c == "" {
				c = domain.CategoryGeneral
			}
			l, err := domain.ParseLevel(op, urgency)
			if err != nil {
				return err
			}
			cx := domain.Complexity(complexity)
			if !cx.IsValid() {
				return domain.NewValidationError(op, "complexity", "must be one of simple, moderate, complex")
			}
			when := time.Now()
			if at != "" {
				if when, err = time.Parse(time.RFC3339, at); err != nil {
					return domain.NewValidationError(op, "at", "must be an RFC 3339 time")
				}
			}

			engine := pricing.New(card)
			params := pricing.QuoteParams{
				Category:   c,
				Urgency:    l,
				Location:   address,
				TimeSlot:   engine.SlotFor(when, immediate, l),
				Complexity: cx,
			}
			if cmd.Flags().Changed("distance-km") {
				params.DistanceKm = &distanceKm
			}
			if cmd.Flags().Changed("demand") {
				params.DemandMultiplier = &demand
			}

			q, err := engine.Quote(params)
			if err != nil {
				return err
			}
			if v.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), q)
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"Line", "Amount"})
			tw.AppendRows([]table.Row{
				{"Base (" + string(q.Category) + ")", money.Sprintf("%d", q.BasePrice)},
				{"Location surcharge", money.Sprintf("%d", q.LocationSurcharge)},
				{"Urgency surcharge", money.Sprintf("%d", q.UrgencySurcharge)},
				{"Time slot surcharge (" + string(q.TimeSlot) + ")", money.Sprintf("%d", q.TimeSlotSurcharge)},
				{"Complexity surcharge (" + string(q.Complexity) + ")", money.Sprintf("%d", q.ComplexitySurcharge)},
				{"Subtotal", money.Sprintf("%d", q.Subtotal)},
				{"Demand multiplier", fmt.Sprintf("x%.2f (%s)", q.DemandMultiplier, pricing.DemandLevel(q.DemandMultiplier))},
			})
			tw.AppendFooter(table.Row{"Final price", money.Sprintf("%d", q.FinalPrice)})
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "general", "service category")
	cmd.Flags().StringVar(&urgency, "urgency", "normal", "low, normal or high")
	cmd.Flags().StringVar(&address, "address", "", "job address")
	cmd.Flags().StringVar(&complexity, "complexity", string(domain.ComplexityModerate), "simple, moderate or complex")
	cmd.Flags().BoolVar(&immediate, "immediate", false, "dispatch now rather than at a scheduled time")
	cmd.Flags().StringVar(&at, "at", "", "scheduled time (RFC 3339); defaults to now")
	cmd.Flags().Float64Var(&distanceKm, "distance-km", 0, "travel distance; defaults to the minimum callout distance")
	cmd.Flags().Float64Var(&demand, "demand", 1, "demand multiplier")
	return cmd
}

// =============================================================================
// rank
// =============================================================================

// rankFile is the YAML accepted by the rank command.
type rankFile struct {
	RequiredSkills []string            `yaml:"required_skills"`
	Origin         *domain.Coordinates `yaml:"origin"`
	Candidates     []rankCandidate     `yaml:"candidates"`
}

type rankCandidate struct {
	ID            string              `yaml:"id"`
	Name          string              `yaml:"name"`
	Skills        []string            `yaml:"skills"`
	Rating        float64             `yaml:"rating"`
	CompletedJobs int                 `yaml:"completed_jobs"`
	Online        bool                `yaml:"online"`
	Active        *bool               `yaml:"active"`
	Verified      *bool               `yaml:"verified"`
	Location      *domain.Coordinates `yaml:"location"`
}

func (c rankCandidate) candidate(i int) (domain.CandidateProvider, error) {
	id := uuid.New()
	if c.ID != "" {
		parsed, err := uuid.Parse(c.ID)
		if err != nil {
			return domain.CandidateProvider{}, fmt.Errorf("candidate %d: invalid id %q", i, c.ID)
		}
		id = parsed
	}
	return domain.CandidateProvider{
		ProviderID:    id,
		Name:          c.Name,
		Skills:        c.Skills,
		Rating:        c.Rating,
		CompletedJobs: c.CompletedJobs,
		Online:        c.Online,
		Active:        c.Active == nil || *c.Active,
		Verified:      c.Verified == nil || *c.Verified,
		Location:      c.Location,
	}, nil
}

func rankCmd(v *viper.Viper) *cobra.Command {
	var (
		lat, lng float64
		skills   []string
	)
	cmd := &cobra.Command{
		Use:   "rank <candidates.yaml>",
		Short: "Score providers for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read candidates: %w", err)
			}
			var f rankFile
			if err := yaml.Unmarshal(data, &f); err != nil {
				return fmt.Errorf("parse candidates: %w", err)
			}

			in := matching.Input{
				RequestID:      "cli",
				RequiredSkills: f.RequiredSkills,
				Origin:         f.Origin,
			}
			if cmd.Flags().Changed("skills") {
				in.RequiredSkills = skills
			}
			if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
				in.Origin = &domain.Coordinates{Lat: lat, Lng: lng}
			}
			for i, c := range f.Candidates {
				cp, err := c.candidate(i)
				if err != nil {
					return err
				}
				in.Candidates = append(in.Candidates, cp)
			}

			ranked, err := matching.New().Rank(in)
			if err != nil {
				return err
			}
			if v.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), ranked)
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"#", "Name", "Score", "Skill %", "Location %", "Rating", "Jobs", "Distance"})
			for i, c := range ranked {
				distance := "-"
				if c.HasDistance() {
					distance = fmt.Sprintf("%.1f km", *c.DistanceKm)
				}
				tw.AppendRow(table.Row{i + 1, c.Name, c.MatchScore, c.SkillMatchPct, c.LocationScorePct, c.Rating, c.CompletedJobs, distance})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "job latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "job longitude")
	cmd.Flags().StringSliceVar(&skills, "skills", nil, "required skills (overrides the file)")
	return cmd
}

// =============================================================================
// token
// =============================================================================

func tokenCmd(v *viper.Viper) *cobra.Command {
	var (
		role string
		id   string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := v.GetString("jwt-secret")
			if secret == "" {
				return errors.New("a signing secret is required (--jwt-secret or FIXMATCH_JWT_SECRET)")
			}
			r := domain.Role(role)
			if !r.IsValid() {
				return fmt.Errorf("unknown role %q", role)
			}
			p := domain.Principal{ID: uuid.New(), Role: r}
			if id != "" {
				parsed, err := uuid.Parse(id)
				if err != nil {
					return fmt.Errorf("invalid id %q", id)
				}
				p.ID = parsed
			}

			token, err := auth.NewTokenCodec(secret, time.Now).Sign(p, ttl)
			if err != nil {
				return err
			}
			if v.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"token":     token,
					"principal": p,
					"expires":   time.Now().Add(ttl).UTC(),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", string(domain.RoleRequester), "requester, provider or operator")
	cmd.Flags().StringVar(&id, "id", "", "principal id; random when omitted")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().String("jwt-secret", "", "HMAC signing secret")
	_ = v.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}

// =============================================================================
// Helpers
// =============================================================================

func loadRateCard(v *viper.Viper) (pricing.RateCard, error) {
	path := v.GetString("rate-card")
	if path == "" {
		return pricing.DefaultRateCard(), nil
	}
	card, err := pricing.LoadRateCard(path)
	if err != nil {
		return pricing.RateCard{}, err
	}
	if err := card.Validate(); err != nil {
		return pricing.RateCard{}, err
	}
	return card, nil
}

func loadRules(v *viper.Viper) (classify.Rules, error) {
	path := v.GetString("rules")
	if path == "" {
		return classify.DefaultRules(), nil
	}
	return classify.LoadRules(path)
}
