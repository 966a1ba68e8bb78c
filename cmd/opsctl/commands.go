package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/campus-ops-api/internal/conflict"
	"github.com/noah-isme/campus-ops-api/internal/models"
	"github.com/noah-isme/campus-ops-api/internal/rbac"
	"github.com/noah-isme/campus-ops-api/internal/service"
	"github.com/noah-isme/campus-ops-api/pkg/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "opsctl",
		Short:        "Operator tooling for the campus operations API",
		SilenceUsage: true,
	}
	root.AddCommand(newPermissionsCmd(), newConflictsCmd(), newTokenCmd())
	return root
}

func newPermissionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "permissions [role]",
		Short: "Print the permission table, optionally for one role",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roles := rbac.Roles()
			if len(args) == 1 {
				role := models.Role(strings.ToUpper(strings.TrimSpace(args[0])))
				if !rbac.Known(role) {
					return fmt.Errorf("unknown role %q", args[0])
				}
				roles = []models.Role{role}
			}
			return printPermissions(cmd.OutOrStdout(), roles)
		},
	}
}

func printPermissions(out io.Writer, roles []models.Role) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROLE\tPERMISSIONS\tREAD-ONLY")
	for _, role := range roles {
		perms := rbac.AllPermissions(role)
		names := make([]string, len(perms))
		for i, p := range perms {
			names[i] = string(p)
		}
		list := strings.Join(names, ",")
		if list == "" {
			list = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%t\n", role, list, rbac.IsReadOnly(role))
	}
	return w.Flush()
}

// schedulePlan is the file read by `opsctl conflicts`. JSON is valid YAML, so
// both formats load.
type schedulePlan struct {
	Candidate struct {
		conflict.ScheduleFields `yaml:",inline"`
		Capacity                int `yaml:"capacity"`
	} `yaml:"candidate"`
	Existing []planExam `yaml:"existing"`
}

type planExam struct {
	ID               string            `yaml:"id"`
	Title            string            `yaml:"title"`
	Status           models.ExamStatus `yaml:"status"`
	ScheduledDate    string            `yaml:"scheduledDate"`
	StartTime        string            `yaml:"startTime"`
	EndTime          string            `yaml:"endTime"`
	Room             string            `yaml:"room"`
	EnrolledStudents []string          `yaml:"enrolledStudents"`
}

func (p planExam) exam() models.Exam {
	status := p.Status
	if status == "" {
		status = models.ExamStatusScheduled
	}
	return models.Exam{
		ID:               p.ID,
		Title:            p.Title,
		Status:           status,
		ScheduledDate:    p.ScheduledDate,
		StartTime:        p.StartTime,
		EndTime:          p.EndTime,
		Room:             p.Room,
		EnrolledStudents: p.EnrolledStudents,
	}
}

func newConflictsCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Run the conflict detector over a schedule file",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read plan: %w", err)
			}
			records, err := detectPlan(raw)
			if err != nil {
				return err
			}
			printConflicts(cmd.OutOrStdout(), records)
			if conflict.HasErrors(records) {
				return fmt.Errorf("%d blocking conflict(s)", countErrors(records))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "schedule plan (YAML or JSON)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func detectPlan(raw []byte) ([]models.ConflictRecord, error) {
	var plan schedulePlan
	if err := yaml.Unmarshal(raw, &plan); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	candidate := plan.Candidate.ScheduleFields
	if _, err := conflict.ParseInterval(candidate.StartTime, candidate.EndTime); err != nil {
		return nil, fmt.Errorf("candidate: %w", err)
	}
	existing := make([]models.Exam, len(plan.Existing))
	for i, e := range plan.Existing {
		existing[i] = e.exam()
	}
	records := conflict.DetectConflicts(candidate, existing)
	if c := conflict.CheckCapacity(len(candidate.EnrolledStudents), plan.Candidate.Capacity); c != nil {
		records = append(records, *c)
	}
	return records, nil
}

func printConflicts(out io.Writer, records []models.ConflictRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, "no conflicts")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEVERITY\tTYPE\tEXAM\tMESSAGE")
	for _, r := range records {
		exam := r.ConflictingID
		if exam == "" {
			exam = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Severity, r.Type, exam, r.Message)
	}
	_ = w.Flush()
}

func countErrors(records []models.ConflictRecord) int {
	n := 0
	for _, r := range records {
		if r.Severity == models.SeverityError {
			n++
		}
	}
	return n
}

func newTokenCmd() *cobra.Command {
	var (
		userID string
		name   string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development access token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Env == config.EnvProduction {
				return fmt.Errorf("refusing to issue tokens in %s", cfg.Env)
			}
			expiry := cfg.JWT.Expiration
			if ttl > 0 {
				expiry = ttl
			}
			identity := service.NewIdentityService(service.IdentityConfig{
				Secret: cfg.JWT.Secret,
				Issuer: cfg.JWT.Issuer,
				Expiry: expiry,
			}, nil)
			token, expiresAt, err := identity.IssueToken(models.Actor{
				ID:   userID,
				Name: name,
				Role: models.Role(strings.ToUpper(role)),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", "", "REGISTRAR, DEAN, DIRECTOR or EXECUTIVE")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to JWT_EXPIRATION)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}
