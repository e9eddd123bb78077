package sqs

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/goccy/go-json"

	"job-queue-worker/internal/pkg/locker"
	"job-queue-worker/internal/pkg/logger"
	"job-queue-worker/internal/pkg/queue"
)

// API is the part of *sqs.Client the queue depends on.
type API interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// NewClient creates a new sqs client. A non-empty endpoint overrides the
// regional one (e.g. localstack).
func NewClient(ctx context.Context, region string, endpoint string) (*sqs.Client, error) {
	// Load the Shared AWS Configuration
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// Message is a job received from SQS. Its receipt handle identifies this
// particular delivery and is required by every terminal operation.
type Message struct {
	msg types.Message
}

func (m *Message) ID() string {
	return aws.ToString(m.msg.MessageId)
}

func (m *Message) Body() string {
	return aws.ToString(m.msg.Body)
}

func (m *Message) ReceiptHandle() string {
	return aws.ToString(m.msg.ReceiptHandle)
}

// SqsQueue implements queue.Queue on Amazon SQS.
type SqsQueue struct {
	client            API
	sourceQueueURL    string
	failedQueueURL    string
	errorQueueURL     string
	waitTimeSeconds   int32
	visibilityTimeout int32
	locker            locker.Locker
}

// New resolves the source, failed and error queue urls for name and returns
// the queue. Urls set through options are not looked up.
func New(ctx context.Context, client API, name string, opts ...Option) (*SqsQueue, error) {
	q := &SqsQueue{
		client:            client,
		waitTimeSeconds:   DefaultWaitTimeSeconds,
		visibilityTimeout: DefaultVisibilityTimeout,
	}
	for _, opt := range opts {
		opt(q)
	}

	names := queue.NewNames(name)
	for _, target := range []struct {
		url  *string
		name string
	}{
		{&q.sourceQueueURL, names.Source},
		{&q.failedQueueURL, names.Failed},
		{&q.errorQueueURL, names.Error},
	} {
		if *target.url != "" {
			continue
		}
		url, err := q.getQueueURL(ctx, target.name)
		if err != nil {
			return nil, err
		}
		*target.url = url
	}
	return q, nil
}

func (q *SqsQueue) getQueueURL(ctx context.Context, name string) (string, error) {
	out, err := q.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
	if err != nil {
		logger.Error("unable to get url of queue %s: %s", name, err)
		return "", err
	}
	return aws.ToString(out.QueueUrl), nil
}

// GetNext receives at most one message. When a locker is configured the
// message body must be locked before the message is handed out; a message
// that cannot be locked is moved to the error queue.
func (q *SqsQueue) GetNext(ctx context.Context) (queue.Job, error) {
	result, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.sourceQueueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     q.waitTimeSeconds,
		VisibilityTimeout:   q.visibilityTimeout,
	})
	if err != nil {
		logger.Error("SQS ReceiveMessage error: %s", err)
		return nil, err
	}
	if len(result.Messages) == 0 {
		return nil, nil
	}

	msg := &Message{msg: result.Messages[0]}
	if q.locker == nil {
		return msg, nil
	}

	ttl := time.Duration(q.visibilityTimeout) * time.Second
	locked, err := q.locker.Acquire(ctx, msg.Body(), ttl)
	if err != nil {
		// the message stays leased and comes back once its visibility window ends
		return nil, err
	}
	if !locked {
		if err := q.Error(ctx, msg); err != nil {
			return nil, err
		}
		return nil, &queue.LockAcquisitionError{
			LockID:     q.locker.UniqueID(msg.Body()),
			LockerInfo: q.locker.Describe(),
		}
	}
	return msg, nil
}

func (q *SqsQueue) Successful(ctx context.Context, job queue.Job) error {
	msg, err := asMessage(job)
	if err != nil {
		return err
	}
	return q.deleteMessage(ctx, msg)
}

func (q *SqsQueue) Failed(ctx context.Context, job queue.Job) error {
	return q.reroute(ctx, q.failedQueueURL, job)
}

func (q *SqsQueue) Error(ctx context.Context, job queue.Job) error {
	return q.reroute(ctx, q.errorQueueURL, job)
}

func (q *SqsQueue) Stopped(ctx context.Context, job queue.Job) error {
	msg, err := asMessage(job)
	if err != nil {
		return err
	}
	return q.deleteMessage(ctx, msg)
}

func (q *SqsQueue) Resend(ctx context.Context, job queue.Job) error {
	return nil
}

func (q *SqsQueue) NothingToDo(ctx context.Context) {}

func (q *SqsQueue) SendJob(ctx context.Context, body string) error {
	return q.sendMessage(ctx, q.sourceQueueURL, body)
}

// SendJobBatch sends up to queue.MaxBatchSize jobs in one call. Entry ids are
// the indexes of bodies. Per-entry failures reported by SQS are not inspected.
func (q *SqsQueue) SendJobBatch(ctx context.Context, bodies []string) error {
	if err := queue.ValidateBatch(bodies, queue.MaxBatchSize); err != nil {
		return err
	}

	entries := make([]types.SendMessageBatchRequestEntry, 0, len(bodies))
	for i, body := range bodies {
		entries = append(entries, types.SendMessageBatchRequestEntry{
			Id:          aws.String(strconv.Itoa(i)),
			MessageBody: aws.String(body),
		})
	}
	_, err := q.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
		QueueUrl: aws.String(q.sourceQueueURL),
		Entries:  entries,
	})
	if err != nil {
		logger.Error("unable to send message batch: %s", err)
	}
	return err
}

func (q *SqsQueue) ChangeMessageVisibility(ctx context.Context, job queue.Job, seconds int32) error {
	msg, err := asMessage(job)
	if err != nil {
		return err
	}
	_, err = q.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.sourceQueueURL),
		ReceiptHandle:     msg.msg.ReceiptHandle,
		VisibilityTimeout: seconds,
	})
	return err
}

// GetMessageBody and ToString return "" for a job this queue did not produce.
func (q *SqsQueue) GetMessageBody(job queue.Job) string {
	msg, err := asMessage(job)
	if err != nil {
		return ""
	}
	return msg.Body()
}

func (q *SqsQueue) ToString(job queue.Job) string {
	msg, err := asMessage(job)
	if err != nil {
		return ""
	}
	data, _ := json.Marshal(struct {
		MessageID     string `json:"messageId"`
		ReceiptHandle string `json:"receiptHandle"`
		Body          string `json:"body"`
	}{msg.ID(), msg.ReceiptHandle(), msg.Body()})
	return string(data)
}

// reroute sends the body to url before deleting the message, so a crash in
// between duplicates the job rather than losing it.
func (q *SqsQueue) reroute(ctx context.Context, url string, job queue.Job) error {
	msg, err := asMessage(job)
	if err != nil {
		return err
	}
	if err := q.sendMessage(ctx, url, msg.Body()); err != nil {
		return err
	}
	return q.deleteMessage(ctx, msg)
}

func (q *SqsQueue) sendMessage(ctx context.Context, url string, body string) error {
	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(url),
		MessageBody: aws.String(body),
	})
	if err != nil {
		logger.Error("unable to send message to queue %s: %s", url, err)
	}
	return err
}

// deleteMessage deletes a message from the source queue.
func (q *SqsQueue) deleteMessage(ctx context.Context, msg *Message) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.sourceQueueURL),
		ReceiptHandle: msg.msg.ReceiptHandle,
	})
	if err != nil {
		logger.Error("unable to delete message from queue: %s", err)
	}
	return err
}

func asMessage(job queue.Job) (*Message, error) {
	msg, ok := job.(*Message)
	if !ok || msg == nil {
		return nil, queue.ErrInvalidJob
	}
	return msg, nil
}
