package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"warrantyreport/internal/common/logger"
	"warrantyreport/internal/incontrol"
	"warrantyreport/internal/mailer"
	"warrantyreport/internal/report"
	"warrantyreport/internal/warranty"
)

// inventorySource is the part of *incontrol.Client the pipeline uses.
type inventorySource interface {
	AcquireToken(ctx context.Context, clientID, clientSecret string) (string, error)
	FetchOrganizations(ctx context.Context, token string) ([]incontrol.Organization, error)
	FetchDevices(ctx context.Context, token, orgID string) ([]incontrol.Device, error)
}

// Delivery outcomes recorded in the run summary.
const (
	deliverySent    = "SENT"
	deliveryFailed  = "FAILED"
	deliverySkipped = "SKIPPED"
	deliveryNone    = "NOT_ATTEMPTED"
)

// runSummary is what one run did, for the final log line and the audit row.
type runSummary struct {
	RunID               string
	Organizations       int
	FailedOrganizations int
	Devices             int
	Rows                int
	Skipped             warranty.SkipStats
	Delivery            string
	DeliveryErr         error
}

// auditColumns matches the fields written by auditRow.
var auditColumns = []string{
	"Run_ID", "Status", "Organizations", "Failed_Organizations", "Devices",
	"Skipped_Records", "Rows", "Delivery", "Error",
}

func (s runSummary) auditRow(runErr error) []string {
	status := "SUCCESS"
	errText := ""
	switch {
	case runErr != nil:
		status = "FAILURE"
		errText = runErr.Error()
	case s.DeliveryErr != nil:
		errText = s.DeliveryErr.Error()
	}
	return []string{
		s.RunID, status,
		strconv.Itoa(s.Organizations), strconv.Itoa(s.FailedOrganizations), strconv.Itoa(s.Devices),
		strconv.Itoa(s.Skipped.Total()), strconv.Itoa(s.Rows), s.Delivery, errText,
	}
}

// runReport executes one report run. It returns an error only for failures
// that end the run: token acquisition, the organization list and
// cancellation. Device fetch and delivery failures are logged and recorded
// in the summary.
func runReport(ctx context.Context, config *Config, src inventorySource, dispatcher mailer.Dispatcher, now time.Time, log *slog.Logger) (runSummary, error) {
	summary := runSummary{Delivery: deliveryNone}

	quoting, err := report.ParseQuoting(config.CSVQuoting)
	if err != nil {
		return summary, err
	}

	token, err := src.AcquireToken(ctx, config.ClientID, config.ClientSecret)
	if err != nil {
		return summary, err
	}
	logger.LogInfo(log, "Access token acquired")

	orgs, err := src.FetchOrganizations(ctx, token)
	if err != nil {
		return summary, err
	}
	summary.Organizations = len(orgs)
	if len(orgs) == 0 {
		logger.LogWarn(log, "No organizations returned")
	} else {
		logger.LogInfo(log, "Organizations retrieved", "count", len(orgs))
	}

	var rows []warranty.ReportRow
	for _, org := range orgs {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("run interrupted: %w", err)
		}
		if org.ID == "" {
			logger.LogWarn(log, "Skipping organization without id", "name", org.Name)
			summary.FailedOrganizations++
			continue
		}

		devices, err := src.FetchDevices(ctx, token, org.ID)
		if err != nil {
			logger.LogError(log, "Device fetch failed, continuing",
				"org_id", org.ID,
				"org_name", org.Name,
				"error", err)
			summary.FailedOrganizations++
			continue
		}

		orgRows, skipped := warranty.SelectExpiring(devices, org.Name, now, config.HorizonDays)
		logger.LogDebug(log, "Organization processed",
			"org_id", org.ID,
			"org_name", org.Name,
			"devices", len(devices),
			"expiring", len(orgRows),
			"skipped", skipped.Total())
		summary.Devices += len(devices)
		summary.Skipped.Add(skipped)
		rows = append(rows, orgRows...)
	}
	summary.Rows = len(rows)

	if summary.Skipped.Total() > 0 {
		logger.LogWarn(log, "Skipped malformed device records", "counts", summary.Skipped.String())
	}

	if len(rows) == 0 && !config.SendEmpty {
		logger.LogInfo(log, "No devices within the warranty horizon, report not sent",
			"horizon_days", config.HorizonDays)
		summary.Delivery = deliverySkipped
		return summary, nil
	}

	r := &mailer.Report{
		CSV:            report.FormatCSV(rows, quoting),
		AttachmentName: report.AttachmentName,
		Rows:           len(rows),
		GeneratedAt:    now,
	}
	if err := dispatcher.Send(ctx, r); err != nil {
		var de *mailer.DeliveryError
		if errors.As(err, &de) && len(de.Missing) > 0 {
			logger.LogError(log, "Report not sent, delivery settings missing", "missing", de.Missing)
		} else {
			logger.LogError(log, "Report delivery failed", "error", err)
		}
		summary.Delivery = deliveryFailed
		summary.DeliveryErr = err
		return summary, nil
	}
	summary.Delivery = deliverySent
	return summary, nil
}

// unavailableDispatcher stands in for a transport that could not be set up,
// so the failure surfaces as a delivery failure after the report is built.
type unavailableDispatcher struct {
	err error
}

func (d unavailableDispatcher) Send(context.Context, *mailer.Report) error {
	return d.err
}
