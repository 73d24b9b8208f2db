package alerts

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

type fakeSNS struct {
	published []sns.PublishInput
	err       error
}

func (f *fakeSNS) Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.published = append(f.published, *in)
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{}, nil
}

func TestSubscriptionChanged(t *testing.T) {
	fake := &fakeSNS{}
	n := NewNotifier(fake, "arn:topic")

	n.SubscriptionChanged(context.Background(), "guild-1", "active")

	if len(fake.published) != 1 {
		t.Fatalf("expected one publish, got %d", len(fake.published))
	}
	msg := aws.ToString(fake.published[0].Message)
	if !strings.Contains(msg, "guild-1") || !strings.Contains(msg, "active") {
		t.Fatalf("message %q", msg)
	}
	if aws.ToString(fake.published[0].TopicArn) != "arn:topic" {
		t.Fatalf("topic %q", aws.ToString(fake.published[0].TopicArn))
	}
}

func TestSubscriptionChangedNoTopic(t *testing.T) {
	fake := &fakeSNS{}
	n := NewNotifier(fake, "")

	n.SubscriptionChanged(context.Background(), "guild-1", "active")

	if len(fake.published) != 0 {
		t.Fatal("notifier without a topic must be a no-op")
	}
}

func TestSubscriptionChangedBestEffort(t *testing.T) {
	fake := &fakeSNS{err: errors.New("topic gone")}
	n := NewNotifier(fake, "arn:topic")

	// Must not panic or propagate; failures are logged only.
	n.SubscriptionChanged(context.Background(), "guild-1", "inactive")
}
