package session

import (
	"net/http"
	"strconv"
	"time"

	sessionService "github.com/lunajournal/luna/backend/internal/service/session"
	"github.com/lunajournal/luna/backend/pkg/utils"
)

const keepAliveInterval = 15 * time.Second

// handleEvents streams a `state` event after every coordinator change until the
// session ends or the client goes away.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	coord, ok := h.lookup(w, r)
	if !ok {
		return
	}

	stream, err := utils.NewSSEWriter(w)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Only the latest snapshot matters; a slow client skips intermediate ones.
	updates := make(chan sessionService.Snapshot, 1)
	unsubscribe := coord.Subscribe(func(s sessionService.Snapshot) {
		for {
			select {
			case updates <- s:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unsubscribe()

	log := h.logger.With().Str("session", coord.ID()).Logger()
	log.Debug().Msg("event stream opened")
	defer log.Debug().Msg("event stream closed")

	var sent uint64
	send := func(s sessionService.Snapshot) bool {
		if sent != 0 && s.Version <= sent {
			return true
		}
		sent = s.Version
		if err := stream.Event("state", strconv.FormatUint(s.Version, 10), s); err != nil {
			log.Debug().Err(err).Msg("event stream write failed")
			return false
		}
		return true
	}

	if !send(coord.Snapshot()) {
		return
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-coord.Done():
			send(coord.Snapshot())
			return
		case s := <-updates:
			if !send(s) {
				return
			}
		case <-ticker.C:
			if err := stream.Comment("keep-alive"); err != nil {
				return
			}
		}
	}
}
