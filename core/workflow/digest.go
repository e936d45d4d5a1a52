package workflow

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/flowboard/core"
)

const DigestTemplate = "analytics_digest"

var ErrNoMailer = errors.New("no email service configured")

type (
	DigestStage struct {
		StageName       string
		RecordCount     int
		AvgDuration     float64
		EfficiencyScore float64
		Trend           Trend
		Bottlenecks     string
	}

	DigestWorkflow struct {
		Name               string
		Color              string
		StageCount         int
		ProgressPercentage float64
		Stages             []DigestStage
	}

	Digest struct {
		GeneratedAt time.Time
		Workflows   []DigestWorkflow
	}
)

// BuildDigest summarizes the analytics of the active workflows.
func (svc *Service) BuildDigest(ctx context.Context) (Digest, error) {
	active := true
	workflows, err := svc.repo.QueryWorkflows(ctx, QueryFilter{Active: &active}, nil)
	if err != nil {
		return Digest{}, err
	}
	digest := Digest{GeneratedAt: svc.timestamp(), Workflows: make([]DigestWorkflow, 0, len(workflows))}
	for _, wf := range workflows {
		stages, err := svc.repo.QueryStages(ctx, wf.ID)
		if err != nil {
			return Digest{}, err
		}
		sortStages(stages)
		records, err := svc.repo.QueryAnalytics(ctx, wf.ID)
		if err != nil {
			return Digest{}, err
		}
		byStage := make(map[string]AnalyticsRecord, len(records))
		for _, rec := range records {
			byStage[rec.StageID] = rec
		}

		dw := DigestWorkflow{
			Name:               wf.Name,
			Color:              wf.Color,
			StageCount:         len(stages),
			ProgressPercentage: progress(stages, records),
		}
		for _, st := range stages {
			rec, ok := byStage[st.ID]
			if !ok {
				continue
			}
			dw.Stages = append(dw.Stages, DigestStage{
				StageName:       st.Name,
				RecordCount:     rec.RecordCount,
				AvgDuration:     rec.AvgDuration,
				EfficiencyScore: rec.EfficiencyScore(),
				Trend:           rec.Trend(digest.GeneratedAt),
				Bottlenecks:     rec.Bottlenecks,
			})
		}
		digest.Workflows = append(digest.Workflows, dw)
	}
	return digest, nil
}

// SendAnalyticsDigest mails the analytics digest to the recipients.
func (svc *Service) SendAnalyticsDigest(ctx context.Context, to []mail.Address) error {
	if svc.mailer == nil {
		return ErrNoMailer
	}
	if len(to) == 0 {
		return errors.New("no digest recipients")
	}
	digest, err := svc.BuildDigest(ctx)
	if err != nil {
		return errors.Wrap(err, "building analytics digest")
	}
	svc.mailer.SendMessages(&core.EmailMessage{
		To:           to,
		Subject:      svc.appName + " - Workflow analytics digest",
		TemplateName: DigestTemplate,
		TemplateData: digest,
	})
	return nil
}
