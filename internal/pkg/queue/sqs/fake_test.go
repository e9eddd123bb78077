package sqs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

const fakeURLPrefix = "https://sqs.local/000000000000/"

var errFakeQueueDoesNotExist = errors.New("AWS.SimpleQueueService.NonExistentQueue")

// fakeSQS is an in-memory SQS with just enough leasing behaviour for the
// queue tests: received messages stay in flight until deleted.
type fakeSQS struct {
	mu       sync.Mutex
	queues   map[string][]types.Message
	inFlight map[string]inFlightMessage
	seq      int

	receiveInputs    []*sqs.ReceiveMessageInput
	visibilityInputs []*sqs.ChangeMessageVisibilityInput
	batchCalls       int
	sendErr          error
}

type inFlightMessage struct {
	url string
	msg types.Message
}

func newFakeSQS(names ...string) *fakeSQS {
	f := &fakeSQS{
		queues:   make(map[string][]types.Message),
		inFlight: make(map[string]inFlightMessage),
	}
	for _, name := range names {
		f.queues[fakeURLPrefix+name] = nil
	}
	return f
}

func (f *fakeSQS) GetQueueUrl(_ context.Context, params *sqs.GetQueueUrlInput, _ ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	url := fakeURLPrefix + aws.ToString(params.QueueName)
	if _, ok := f.queues[url]; !ok {
		return nil, errFakeQueueDoesNotExist
	}
	return &sqs.GetQueueUrlOutput{QueueUrl: aws.String(url)}, nil
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, params *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.receiveInputs = append(f.receiveInputs, params)
	url := aws.ToString(params.QueueUrl)
	pending := f.queues[url]
	if len(pending) == 0 {
		return &sqs.ReceiveMessageOutput{}, nil
	}

	msg := pending[0]
	f.queues[url] = pending[1:]
	f.seq++
	msg.ReceiptHandle = aws.String(fmt.Sprintf("receipt-%d", f.seq))
	f.inFlight[*msg.ReceiptHandle] = inFlightMessage{url: url, msg: msg}
	return &sqs.ReceiveMessageOutput{Messages: []types.Message{msg}}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, params *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	receipt := aws.ToString(params.ReceiptHandle)
	m, ok := f.inFlight[receipt]
	if !ok || m.url != aws.ToString(params.QueueUrl) {
		return nil, errors.New("ReceiptHandleIsInvalid")
	}
	delete(f.inFlight, receipt)
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sendErr != nil {
		return nil, f.sendErr
	}
	id, err := f.enqueue(aws.ToString(params.QueueUrl), aws.ToString(params.MessageBody))
	if err != nil {
		return nil, err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String(id)}, nil
}

func (f *fakeSQS) SendMessageBatch(_ context.Context, params *sqs.SendMessageBatchInput, _ ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.batchCalls++
	if len(params.Entries) > 10 {
		return nil, errors.New("AWS.SimpleQueueService.TooManyEntriesInBatchRequest")
	}
	out := &sqs.SendMessageBatchOutput{}
	for _, entry := range params.Entries {
		id, err := f.enqueue(aws.ToString(params.QueueUrl), aws.ToString(entry.MessageBody))
		if err != nil {
			return nil, err
		}
		out.Successful = append(out.Successful, types.SendMessageBatchResultEntry{Id: entry.Id, MessageId: aws.String(id)})
	}
	return out, nil
}

func (f *fakeSQS) ChangeMessageVisibility(_ context.Context, params *sqs.ChangeMessageVisibilityInput, _ ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.inFlight[aws.ToString(params.ReceiptHandle)]; !ok {
		return nil, errors.New("ReceiptHandleIsInvalid")
	}
	f.visibilityInputs = append(f.visibilityInputs, params)
	return &sqs.ChangeMessageVisibilityOutput{}, nil
}

func (f *fakeSQS) enqueue(url string, body string) (string, error) {
	if _, ok := f.queues[url]; !ok {
		return "", errFakeQueueDoesNotExist
	}
	f.seq++
	id := fmt.Sprintf("msg-%d", f.seq)
	f.queues[url] = append(f.queues[url], types.Message{MessageId: aws.String(id), Body: aws.String(body)})
	return id, nil
}

// bodies returns the bodies still pending on the named queue.
func (f *fakeSQS) bodies(name string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, msg := range f.queues[fakeURLPrefix+name] {
		out = append(out, aws.ToString(msg.Body))
	}
	return out
}

func (f *fakeSQS) inFlightCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inFlight)
}
