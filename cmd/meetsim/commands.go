package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/capitalize-ai/meeting-agents/internal/agent"
	"github.com/capitalize-ai/meeting-agents/internal/config"
	"github.com/capitalize-ai/meeting-agents/internal/llm"
	"github.com/capitalize-ai/meeting-agents/internal/model"
	"github.com/capitalize-ai/meeting-agents/internal/postmeeting"
	"github.com/capitalize-ai/meeting-agents/internal/simulator"
	"github.com/capitalize-ai/meeting-agents/pkg/logger"
)

type dependencies struct {
	Config *config.Config
	Logger *logger.Logger
	Out    io.Writer
}

func newRootCmd(deps *dependencies) *cobra.Command {
	root := &cobra.Command{
		Use:           "meetsim",
		Short:         "Simulate meetings between employee agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("roster", deps.Config.Agents.RosterPath, "path to the roster YAML")

	root.AddCommand(newRunCmd(deps))
	root.AddCommand(newRosterCmd(deps))
	return root
}

type runOptions struct {
	title         string
	meetingType   string
	participants  []string
	agenda        string
	phasePause    time.Duration
	speakerPause  time.Duration
	responsePause time.Duration
	jsonOutput    bool
}

func newRunCmd(deps *dependencies) *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulated meeting and print its transcript and summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rosterPath, _ := cmd.Flags().GetString("roster")
			return runMeeting(cmd, deps, rosterPath, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.title, "title", "Daily standup", "meeting title")
	f.StringVar(&opts.meetingType, "type", simulator.TypeStandup, "meeting type: standup, planning, review or anything else for a generic flow")
	f.StringSliceVar(&opts.participants, "participants", nil, "participant ids, defaults to the whole roster")
	f.StringVar(&opts.agenda, "agenda", "", "agenda text")
	f.DurationVar(&opts.phasePause, "phase-pause", time.Second, "pause between phases")
	f.DurationVar(&opts.speakerPause, "speaker-pause", 500*time.Millisecond, "pause between speakers")
	f.DurationVar(&opts.responsePause, "response-pause", 500*time.Millisecond, "pause between responses")
	f.BoolVar(&opts.jsonOutput, "json", false, "print the result as JSON instead of a transcript")
	return cmd
}

type runResult struct {
	Meeting      simulator.SummaryData `json:"meeting"`
	Conversation any                   `json:"conversation"`
	Summary      model.MeetingSummary  `json:"summary"`
}

func runMeeting(cmd *cobra.Command, deps *dependencies, rosterPath string, opts runOptions) error {
	ctx := cmd.Context()
	log := deps.Logger

	roster, err := agent.LoadRoster(rosterPath)
	if err != nil {
		return err
	}
	llmClient := newLLMClient(deps.Config.LLM, log)
	agents, err := agent.RegistryFromRoster(roster, llmClient, log)
	if err != nil {
		return err
	}

	participants := opts.participants
	if len(participants) == 0 {
		participants = agents.IDs()
	}

	simOpts := []simulator.Option{
		simulator.WithPauses(simulator.Pauses{
			Phase:    opts.phasePause,
			Speaker:  opts.speakerPause,
			Response: opts.responsePause,
		}),
	}
	if !opts.jsonOutput {
		simOpts = append(simOpts, simulator.WithObserver(func(_ string, msg model.Message) {
			fmt.Fprintf(deps.Out, "[%s] %s: %s\n", msg.Timestamp.Format("15:04:05"), msg.Speaker, msg.Content)
		}))
	}
	sim := simulator.New(agents, log, simOpts...)

	id, err := sim.CreateMeeting(simulator.CreateRequest{
		Title:        opts.title,
		Participants: participants,
		Agenda:       opts.agenda,
		Type:         opts.meetingType,
	})
	if err != nil {
		return err
	}
	if err := sim.StartMeeting(ctx, id); err != nil {
		return fmt.Errorf("meeting interrupted: %w", err)
	}
	m, _ := sim.EndMeeting(ctx, id)

	postOpts := []postmeeting.Option{}
	if llmClient != nil {
		postOpts = append(postOpts, postmeeting.WithLLM(llmClient))
	}
	post := postmeeting.New(postmeeting.Config{}, log, postOpts...)
	summary := post.CreateSummary(ctx, m.Messages(), m.Context())

	if opts.jsonOutput {
		enc := json.NewEncoder(deps.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(runResult{
			Meeting:      m.SummaryData(),
			Conversation: m.ConversationSummary(),
			Summary:      summary,
		})
	}
	printSummary(deps.Out, m, summary)
	return nil
}

func printSummary(w io.Writer, m *simulator.Meeting, s model.MeetingSummary) {
	conv := m.ConversationSummary()
	fmt.Fprintf(w, "\nMessages: %d  Most active: %s  Engagement: %s\n",
		conv.Statistics.TotalMessages, conv.MostActiveParticipant, conv.EngagementLevel)
	if len(conv.TopKeywords) > 0 {
		fmt.Fprintf(w, "Keywords: %s\n", strings.Join(conv.TopKeywords, ", "))
	}
	printList(w, "Key points", s.KeyPoints)
	printList(w, "Decisions", s.Decisions)
	printList(w, "Blockers", s.Blockers)
	if len(s.ActionItems) > 0 {
		fmt.Fprintln(w, "\nAction items:")
		for _, a := range s.ActionItems {
			fmt.Fprintf(w, "  - [%s] %s (%s)\n", a.Priority, a.Description, a.Assignee)
		}
	}
}

func printList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(w, "  - %s\n", it)
	}
}

func newRosterCmd(deps *dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "roster",
		Short: "List the agents in the roster",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rosterPath, _ := cmd.Flags().GetString("roster")
			roster, err := agent.LoadRoster(rosterPath)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(deps.Out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tROLE\tFOCUS")
			for _, e := range roster.Employees {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.ID, e.Name, e.Role, e.Context.CurrentFocus)
			}
			return tw.Flush()
		},
	}
}

func newLLMClient(cfg config.LLMConfig, log *logger.Logger) llm.Client {
	provider, key := cfg.APIKey()
	if key == "" {
		return nil
	}
	c, err := llm.NewClient(llm.Provider(provider), key)
	if err != nil {
		log.Warn("LLM disabled", zap.String("provider", provider), zap.Error(err))
		return nil
	}
	return c
}
