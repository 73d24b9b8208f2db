package alerts

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// api is the slice of the SNS client the notifier depends on.
type api interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Notifier publishes subscription lifecycle events to an SNS topic so
// operators hear about activations and cancellations. It is best-effort:
// failures are logged and never affect the interaction response.
type Notifier struct {
	client   api
	topicARN string
}

func NewNotifier(client api, topicARN string) *Notifier {
	return &Notifier{client: client, topicARN: topicARN}
}

// SubscriptionChanged publishes a short notification. A notifier with no
// topic configured is a no-op.
func (n *Notifier) SubscriptionChanged(ctx context.Context, guildID, status string) {
	if n == nil || n.client == nil || n.topicARN == "" {
		return
	}

	_, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String("Guild subscription update"),
		Message:  aws.String(fmt.Sprintf("guild %s subscription is now %s", guildID, status)),
	})
	if err != nil {
		slog.Warn("failed to publish subscription alert", "guild_id", guildID, "error", err)
	}
}
