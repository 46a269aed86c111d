package hub

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/shubham-shewale/price-widget/cmd/refresher/internal/protocol"
	"github.com/shubham-shewale/price-widget/pkg/coordinator"
	"github.com/shubham-shewale/price-widget/pkg/models"
)

type ClientInterface interface {
	ID() string
	SendJSON(v interface{})
	SendBytes(b []byte)
	Close()
}

// Requester receives explicit refresh requests. An empty id list means every active instance.
type Requester interface {
	Request(ids ...models.InstanceID) bool
}

// Hub tracks which connected surfaces display which widget instances and
// delivers rendered views to them. It is the refresher's coordinator.Presenter.
type Hub struct {
	instances  map[models.InstanceID]map[ClientInterface]bool
	clientInst map[ClientInterface]map[models.InstanceID]bool

	requester Requester
	launch    coordinator.LaunchAction
	logger    *zap.Logger
	mu        sync.RWMutex
}

var _ coordinator.Presenter = (*Hub)(nil)

func NewHub(logger *zap.Logger, launch coordinator.LaunchAction) *Hub {
	return &Hub{
		instances:  make(map[models.InstanceID]map[ClientInterface]bool),
		clientInst: make(map[ClientInterface]map[models.InstanceID]bool),
		launch:     launch,
		logger:     logger,
	}
}

// SetRequester wires the trigger driver after construction; the driver itself needs the hub.
func (h *Hub) SetRequester(r Requester) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requester = r
}

func (h *Hub) HandleCommand(client ClientInterface, req protocol.WSRequest) {
	switch req.Action {
	case protocol.ActionAttach:
		h.handleAttach(client, req)
	case protocol.ActionDetach:
		h.handleDetach(client, req)
	case protocol.ActionDetachAll:
		h.handleDetachAll(client, req)
	case protocol.ActionRefresh:
		h.handleRefresh(client, req)
	case protocol.ActionTap:
		h.handleTap(client, req)
	default:
		h.sendError(client, req.ID, "Unknown action: "+req.Action)
	}
}

func (h *Hub) handleAttach(client ClientInterface, req protocol.WSRequest) {
	h.mu.Lock()

	var attached []models.InstanceID
	for _, id := range req.Payload.Instances {
		if !id.Valid() {
			continue
		}
		// Idempotency: Ignore if already attached
		if h.clientInst[client] != nil && h.clientInst[client][id] {
			continue
		}
		if h.clientInst[client] == nil {
			h.clientInst[client] = make(map[models.InstanceID]bool)
		}
		h.clientInst[client][id] = true
		if h.instances[id] == nil {
			h.instances[id] = make(map[ClientInterface]bool)
		}
		h.instances[id][client] = true
		attached = append(attached, id)
	}
	requester := h.requester
	h.mu.Unlock()

	if len(attached) == 0 {
		h.sendError(client, req.ID, "No valid/new instances provided")
		return
	}

	h.logger.Info("Instances attached", zap.String("client", client.ID()), zap.Any("instances", attached))
	h.sendAck(client, req.ID, "success", fmt.Sprintf("Attached %v", attached))

	// A new surface shows nothing until its first commit
	if requester != nil && !requester.Request(attached...) {
		h.logger.Warn("Refresh queue full, new instances wait for the next trigger", zap.Any("instances", attached))
	}
}

func (h *Hub) handleDetach(client ClientInterface, req protocol.WSRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var removed []models.InstanceID
	if ids, ok := h.clientInst[client]; ok {
		for _, id := range req.Payload.Instances {
			if ids[id] {
				delete(ids, id)
				h.unbind(id, client)
				removed = append(removed, id)
			}
		}
	}

	if len(removed) > 0 {
		h.sendAck(client, req.ID, "success", fmt.Sprintf("Detached %v", removed))
	} else {
		h.sendError(client, req.ID, fmt.Sprintf("Not attached to: %v", req.Payload.Instances))
	}
}

func (h *Hub) handleDetachAll(client ClientInterface, req protocol.WSRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ids, ok := h.clientInst[client]; ok {
		for id := range ids {
			h.unbind(id, client)
		}
		// Clear the map but keep the client registered
		h.clientInst[client] = make(map[models.InstanceID]bool)
	}
	h.sendAck(client, req.ID, "success", "Detached all instances")
}

func (h *Hub) handleRefresh(client ClientInterface, req protocol.WSRequest) {
	h.mu.RLock()
	requester := h.requester
	h.mu.RUnlock()

	if requester == nil {
		h.sendError(client, req.ID, "Refresh unavailable")
		return
	}
	if !requester.Request(req.Payload.Instances...) {
		h.sendError(client, req.ID, "Refresh queue full, try again")
		return
	}
	h.sendAck(client, req.ID, "success", "Refresh requested")
}

// handleTap acknowledges a tap on the root slot. Opening the application is the host platform's job.
func (h *Hub) handleTap(client ClientInterface, req protocol.WSRequest) {
	if h.launch == "" {
		h.sendError(client, req.ID, "No launch action bound")
		return
	}
	h.logger.Info("Launch requested",
		zap.String("client", client.ID()),
		zap.Any("instances", req.Payload.Instances),
		zap.String("action", string(h.launch)),
	)
	h.sendAck(client, req.ID, "success", string(h.launch))
}

func (h *Hub) Unregister(client ClientInterface) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ids, ok := h.clientInst[client]; ok {
		for id := range ids {
			h.unbind(id, client)
		}
		delete(h.clientInst, client)
	}
	client.Close()
}

// Commit delivers a rendered view to every surface showing the instance.
func (h *Hub) Commit(_ context.Context, id models.InstanceID, view coordinator.View) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.instances[id]
	if !ok || len(clients) == 0 {
		return fmt.Errorf("instance %s: %w", id, coordinator.ErrUnknownInstance)
	}
	msg := protocol.WSResponse{Type: protocol.TypeView, Data: view}
	for client := range clients {
		client.SendJSON(msg)
	}
	return nil
}

// Instances returns the currently attached instance ids in sorted order.
func (h *Hub) Instances() []models.InstanceID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]models.InstanceID, 0, len(h.instances))
	for id := range h.instances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// unbind must be called with h.mu held.
func (h *Hub) unbind(id models.InstanceID, client ClientInterface) {
	delete(h.instances[id], client)
	if len(h.instances[id]) == 0 {
		delete(h.instances, id)
	}
}

func (h *Hub) sendAck(c ClientInterface, id, status, msg string) {
	c.SendJSON(protocol.WSResponse{Type: protocol.TypeAck, ID: id, Status: status, Message: msg})
}

func (h *Hub) sendError(c ClientInterface, id, msg string) {
	c.SendJSON(protocol.WSResponse{Type: protocol.TypeError, ID: id, Message: msg})
}
