// Package alert publishes machine-state fault transitions to an SNS topic.
package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/iotdash/dashboard-engine/internal/domain"
	"github.com/iotdash/dashboard-engine/internal/metrics"
)

// SNSNotifier wraps the AWS SNS client for fault notifications.
type SNSNotifier struct {
	svc      *sns.Client
	topicArn string
}

func NewSNSNotifier(ctx context.Context, region, topicArn string) (*SNSNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return &SNSNotifier{
		svc:      sns.NewFromConfig(cfg),
		topicArn: topicArn,
	}, nil
}

// NotifyFault publishes one alert for a device entering FAULT.
func (n *SNSNotifier) NotifyFault(deviceID string, st domain.MachineState) error {
	subject := fmt.Sprintf("IoT Dashboard Alert: %s entered FAULT", deviceID)

	confidence := "n/a"
	if st.Confidence != nil {
		confidence = fmt.Sprintf("%.1f%%", *st.Confidence)
	}
	reasons := "none reported"
	if len(st.Reasons) > 0 {
		reasons = strings.Join(st.Reasons, "; ")
	}
	message := fmt.Sprintf(
		"Machine Fault Detected\n\n"+
			"Device: %s\n"+
			"State: %s\n"+
			"Confidence: %s\n"+
			"Reasons: %s\n"+
			"Time: %s\n\n"+
			"Please investigate immediately.",
		deviceID,
		st.State,
		confidence,
		reasons,
		time.Now().Format(time.RFC3339),
	)

	input := &sns.PublishInput{
		TopicArn: aws.String(n.topicArn),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	}
	if _, err := n.svc.Publish(context.Background(), input); err != nil {
		return fmt.Errorf("failed to publish to SNS: %w", err)
	}
	metrics.FaultAlerts.WithLabelValues(deviceID).Inc()
	return nil
}
