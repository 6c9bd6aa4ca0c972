package broker

import (
	"context"
	"errors"
	"math"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/example/aura-ai-core/internal/diagnosis"
	"github.com/example/aura-ai-core/internal/loader"
)

// RiskLevelRejected is the sentinel reported for images the retina gate
// turned away, distinct from the normal band vocabulary so downstream
// consumers can tell "analyzed and risky" from "not a retina image".
const RiskLevelRejected = "Rejected"

const rejectedPrefix = "[REJECTED] "

// DiagnosisService is the orchestrator capability the consumer invokes.
type DiagnosisService interface {
	Diagnose(ctx context.Context, req loader.ImageRequest) (*diagnosis.Outcome, error)
}

// ResultReporter pushes a finished diagnosis to the imaging service.
type ResultReporter interface {
	Report(ctx context.Context, imageID string, report DiagnosisReport) error
}

// Consumer is the background daemon that turns "image uploaded" events into
// diagnosis callbacks. It reconnects forever on broker failures.
type Consumer struct {
	amqpURL  string
	exchange string
	service  DiagnosisService
	reporter ResultReporter
	logger   *zap.Logger

	reconnectDelay time.Duration
}

// NewConsumer constructs the upload-event consumer.
func NewConsumer(amqpURL, exchange string, service DiagnosisService, reporter ResultReporter, logger *zap.Logger) *Consumer {
	return &Consumer{
		amqpURL:        amqpURL,
		exchange:       exchange,
		service:        service,
		reporter:       reporter,
		logger:         logger.Named("upload_consumer"),
		reconnectDelay: 5 * time.Second,
	}
}

// Run blocks, consuming upload events until the context is cancelled.
// Connection failures never terminate the loop.
func (c *Consumer) Run(ctx context.Context) {
	for {
		if err := c.consume(ctx); err != nil {
			c.logger.Warn("broker session ended, reconnecting",
				zap.Error(err), zap.Duration("delay", c.reconnectDelay))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *Consumer) consume(ctx context.Context) error {
	conn, err := amqp.Dial(c.amqpURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(c.exchange, "fanout", true, false, false, false, nil); err != nil {
		return err
	}

	// exclusive ephemeral queue: every instance sees every event
	queue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return err
	}
	if err := ch.QueueBind(queue.Name, "", c.exchange, false, nil); err != nil {
		return err
	}

	// auto-ack on receipt: at-most-once downstream of acknowledgment
	deliveries, err := ch.Consume(queue.Name, "", true, true, false, false, nil)
	if err != nil {
		return err
	}

	c.logger.Info("listening for upload events",
		zap.String("exchange", c.exchange), zap.String("queue", queue.Name))

	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handle(ctx, delivery.Body)
		}
	}
}

// handle processes one upload event end to end. Nothing it does may crash
// the consumer loop.
func (c *Consumer) handle(ctx context.Context, body []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic while handling upload event", zap.Any("panic", r))
		}
	}()

	event := DecodeUploadEvent(body)
	c.logger.Info("upload event received",
		zap.String("image_id", event.ImageID), zap.String("patient_id", event.PatientID))

	req := loader.ImageRequest{
		FileName: uploadFileName(event.ImageID),
		ImageURL: event.ImageURL,
		CaseID:   event.PatientID,
	}

	outcome, err := c.service.Diagnose(ctx, req)
	if err != nil {
		c.logger.Error("diagnosis failed for upload event",
			zap.String("image_id", event.ImageID), zap.Error(err))
	}

	if event.ImageID == "" {
		c.logger.Warn("upload event carried no image id, skipping callback")
		return
	}

	report := buildReport(outcome, err)
	if err := c.reporter.Report(ctx, event.ImageID, report); err != nil {
		// dropped by contract: no retry, no dead-letter
		c.logger.Warn("result callback failed, dropping",
			zap.String("image_id", event.ImageID), zap.Error(err))
	}
}

func buildReport(outcome *diagnosis.Outcome, err error) DiagnosisReport {
	if err != nil || outcome == nil {
		message := "analysis failed"
		if err != nil {
			message = "analysis failed: " + err.Error()
		}
		return DiagnosisReport{PredictionResult: message, RiskLevel: "None"}
	}

	report := DiagnosisReport{
		PredictionResult: outcome.Diagnosis,
		ConfidenceScore:  math.Round(outcome.RiskScore) / 100,
		RiskLevel:        outcome.RiskLevel,
		HeatmapURL:       outcome.HeatmapURL,
		DoctorNotes:      diagnosis.NotesForLevel(outcome.RiskLevel),
	}

	switch outcome.Status {
	case diagnosis.StatusRejected:
		report.PredictionResult = rejectedPrefix + outcome.Diagnosis
		report.RiskLevel = RiskLevelRejected
	case diagnosis.StatusFailed:
		report.PredictionResult = "analysis failed: " + outcome.Error
	}
	return report
}

func uploadFileName(imageID string) string {
	if imageID == "" {
		return ""
	}
	return imageID + ".jpg"
}
