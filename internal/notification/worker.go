// Package notification delivers web push messages to subscribers of a server
// when its repair completes. Delivery runs on a small worker pool fed by the
// workflow engine; a slow or failing push service never blocks a resolve.
package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"beryll-workflow-backend/internal/model"
)

// Sender sends a single web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender sends through the webpush library.
type WebPushSender struct{}

// Send implements Sender.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool fans repair-completed notifications out to subscribers.
type WorkerPool struct {
	size    int
	jobs    chan int64
	db      *gorm.DB
	webpush *webpush.Options
	sender  Sender
}

// NewWorkerPool creates a worker pool of the given size.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan int64, size),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines. They run until ctx is cancelled.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("notification worker %d started", id)
	for {
		select {
		case serverID := <-wp.jobs:
			wp.notifyServerRepaired(ctx, serverID)
		case <-ctx.Done():
			log.Printf("notification worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues a repair-completed notification for a server. Implements
// the workflow engine's Notifier.
func (wp *WorkerPool) Dispatch(serverID int64) {
	wp.jobs <- serverID
}

// notifyServerRepaired fetches the server's subscribers and pushes to each.
func (wp *WorkerPool) notifyServerRepaired(ctx context.Context, serverID int64) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_server_mapping ssm ON ssm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("ssm.server_id = ?", serverID).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("error fetching subscriptions for server %d: %v", serverID, err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	var server model.Server
	serverLabel := fmt.Sprintf("%d", serverID)
	if err := wp.db.WithContext(ctx).
		Select("serial_number").
		First(&server, serverID).Error; err != nil {
		log.Printf("error fetching server %d: %v", serverID, err)
	} else if server.SerialNumber != "" {
		serverLabel = server.SerialNumber
	}

	message := fmt.Sprintf("Server %s repair completed", serverLabel)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// 410 means the subscription is gone for good
	if resp.StatusCode == http.StatusGone {
		log.Printf("subscription %s expired, deleting", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
