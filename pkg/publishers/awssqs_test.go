package publishers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/pulsewire-hq/pulsewire-aggregator/internal/domain"
)

type fakeSQSClient struct {
	input *sqs.SendMessageInput
	err   error
}

func (f *fakeSQSClient) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("msg-123")}, nil
}

func TestSQSPublisherSendSuccess(t *testing.T) {
	client := &fakeSQSClient{}
	pub := &sqsPublisher{
		id:       "queue-1",
		typ:      TypeSQS,
		queueURL: "https://example.com/queue",
		client:   client,
		log:      noopLogger{},
	}

	err := pub.Publish(context.Background(), Event{
		SourceName: "tech-blog",
		Record:     domain.ContentRecord{ID: "r1"},
	})
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if client.input == nil {
		t.Fatalf("client was not called")
	}
	if got := aws.ToString(client.input.QueueUrl); got != "https://example.com/queue" {
		t.Fatalf("QueueUrl = %s", got)
	}
	attr, ok := client.input.MessageAttributes["source_name"]
	if !ok || attr.StringValue == nil || aws.ToString(attr.StringValue) != "tech-blog" {
		t.Fatalf("source_name attribute missing or wrong: %#v", attr)
	}
	if attr.DataType == nil || aws.ToString(attr.DataType) != "String" {
		t.Fatalf("DataType should be String, got %#v", attr.DataType)
	}
	if client.input.MessageBody == nil || !strings.Contains(aws.ToString(client.input.MessageBody), `"source_name":"tech-blog"`) {
		t.Fatalf("MessageBody missing source_name: %s", aws.ToString(client.input.MessageBody))
	}
}

func TestSQSPublisherSendError(t *testing.T) {
	client := &fakeSQSClient{err: errors.New("boom")}
	pub := &sqsPublisher{
		id:       "queue-1",
		typ:      TypeSQS,
		queueURL: "https://example.com/queue",
		client:   client,
		log:      noopLogger{},
	}

	err := pub.Publish(context.Background(), Event{
		SourceName: "tech-blog",
		Record:     domain.ContentRecord{ID: "r1"},
	})
	if err == nil {
		t.Fatalf("expected error from Publish")
	}
}
