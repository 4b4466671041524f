package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"lobbyd/internal/cache"
	"lobbyd/internal/config"
	"lobbyd/internal/model"
	"lobbyd/internal/repository"

	"github.com/sirupsen/logrus"
)

// SweepReport counts what one janitor pass did
type SweepReport struct {
	EmptyRooms   int `json:"emptyRooms"`
	StaleRooms   int `json:"staleRooms"`
	PurgedRooms  int `json:"purgedRooms"`
	OfflineUsers int `json:"offlineUsers"`
	SkippedBusy  int `json:"skippedBusy"`
}

// Janitor reclaims abandoned rooms and stale presence. It has no scheduler of
// its own: request traffic calls MaybeRun, and the shared marker makes sure
// only one process sweeps per interval.
type Janitor struct {
	rooms       repository.RoomRepo
	members     repository.MembershipRepo
	presence    *PresenceService
	locker      cache.Locker
	marker      cache.JanitorMarker
	cfg         config.JanitorConfig
	staleOnline time.Duration
	broadcaster Broadcaster
	now         func() time.Time

	nextCheck atomic.Int64
	running   atomic.Bool
	wg        sync.WaitGroup
}

// NewJanitor creates a janitor. presenceStaleAfter is how long a user may go
// unseen before being flipped to offline.
func NewJanitor(
	rooms repository.RoomRepo,
	members repository.MembershipRepo,
	presence *PresenceService,
	locker cache.Locker,
	marker cache.JanitorMarker,
	cfg config.JanitorConfig,
	presenceStaleAfter time.Duration,
) *Janitor {
	return &Janitor{
		rooms:       rooms,
		members:     members,
		presence:    presence,
		locker:      locker,
		marker:      marker,
		cfg:         cfg,
		staleOnline: presenceStaleAfter,
		now:         systemClock,
	}
}

// SetBroadcaster sets the broadcaster used to tell members a room was reaped
func (j *Janitor) SetBroadcaster(b Broadcaster) {
	j.broadcaster = b
}

// MaybeRun starts a background sweep if this process has not checked within
// the interval and no sweep is already running. It never blocks on the store
// and reports whether a sweep goroutine was started.
func (j *Janitor) MaybeRun() bool {
	now := j.now().UnixNano()
	next := j.nextCheck.Load()
	if now < next {
		return false
	}
	if !j.nextCheck.CompareAndSwap(next, now+int64(j.cfg.Interval)) {
		return false
	}
	if !j.running.CompareAndSwap(false, true) {
		return false
	}

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		defer j.running.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), j.cfg.SweepTimeout)
		defer cancel()

		claimed, err := j.marker.Claim(ctx, j.now(), j.cfg.Interval)
		if err != nil {
			logrus.WithError(err).Warn("janitor: could not claim sweep marker")
			return
		}
		if !claimed {
			logrus.Debug("janitor: another instance swept recently")
			return
		}

		report, err := j.RunOnce(ctx)
		if err != nil {
			logrus.WithError(err).Warn("janitor: sweep finished with errors")
		}
		logrus.WithFields(logrus.Fields{
			"empty_rooms":   report.EmptyRooms,
			"stale_rooms":   report.StaleRooms,
			"purged_rooms":  report.PurgedRooms,
			"offline_users": report.OfflineUsers,
			"skipped_busy":  report.SkippedBusy,
		}).Info("janitor: sweep complete")
	}()
	return true
}

// Wait blocks until any in-flight sweep returns
func (j *Janitor) Wait() {
	j.wg.Wait()
}

// RunOnce runs every sweep once. Sweeps are independent: a failing one does
// not stop the others, and all errors are joined into the result.
func (j *Janitor) RunOnce(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	var errs []error
	now := j.now()

	n, busy, err := j.sweepRooms(ctx, []model.RoomStatus{model.RoomWaiting}, time.Time{}, j.reapIfEmpty)
	report.EmptyRooms, report.SkippedBusy = n, report.SkippedBusy+busy
	errs = append(errs, err)

	n, busy, err = j.sweepRooms(ctx, model.ActiveRoomStatuses, now.Add(-j.cfg.RoomStaleAfter), j.reapStale)
	report.StaleRooms, report.SkippedBusy = n, report.SkippedBusy+busy
	errs = append(errs, err)

	terminal := []model.RoomStatus{model.RoomFinished, model.RoomCancelled}
	n, busy, err = j.sweepRooms(ctx, terminal, now.Add(-j.cfg.Retention), j.purge(terminal, now.Add(-j.cfg.Retention)))
	report.PurgedRooms, report.SkippedBusy = n, report.SkippedBusy+busy
	errs = append(errs, err)

	offline, err := j.presence.MarkStaleOffline(ctx, now.Add(-j.staleOnline))
	report.OfflineUsers = offline
	errs = append(errs, err)

	return report, errors.Join(errs...)
}

type reapFunc func(ctx context.Context, roomID string) (bool, error)

// sweepRooms lists candidate rooms and reaps each under its lock. Rooms whose
// lock is held are skipped; the next pass will see them again.
func (j *Janitor) sweepRooms(ctx context.Context, statuses []model.RoomStatus, activityBefore time.Time, reap reapFunc) (int, int, error) {
	ids, err := j.rooms.ListIDs(ctx, statuses, activityBefore)
	if err != nil {
		return 0, 0, err
	}

	reaped, busy := 0, 0
	var errs []error
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		l, err := j.locker.TryAcquire(ctx, cache.RoomLockKey(id))
		if errors.Is(err, cache.ErrLockBusy) {
			busy++
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}

		ok, err := reap(ctx, id)
		if rerr := l.Release(context.WithoutCancel(ctx)); rerr != nil {
			logrus.WithError(rerr).WithField("room_id", id).Warn("janitor: lock release failed")
		}
		if err != nil {
			logrus.WithError(err).WithField("room_id", id).Warn("janitor: reap failed")
			errs = append(errs, err)
			continue
		}
		if ok {
			reaped++
		}
	}
	return reaped, busy, errors.Join(errs...)
}

// reapIfEmpty deletes a waiting room with no present human member
func (j *Janitor) reapIfEmpty(ctx context.Context, roomID string) (bool, error) {
	members, err := j.members.ListByRoom(ctx, roomID)
	if err != nil || model.CountPresentHumans(members) > 0 {
		return false, err
	}
	return j.deleteRoom(ctx, roomID, []model.RoomStatus{model.RoomWaiting}, time.Time{}, "room empty")
}

// reapStale deletes an active room with no activity since the stale cutoff
func (j *Janitor) reapStale(ctx context.Context, roomID string) (bool, error) {
	return j.deleteRoom(ctx, roomID, model.ActiveRoomStatuses, j.now().Add(-j.cfg.RoomStaleAfter), "room inactive")
}

func (j *Janitor) purge(statuses []model.RoomStatus, before time.Time) reapFunc {
	return func(ctx context.Context, roomID string) (bool, error) {
		return j.deleteRoom(ctx, roomID, statuses, before, "")
	}
}

// deleteRoom hard-deletes the room if it still matches the sweep condition,
// then drops its seats and resets presence for real members. A room that
// changed since listing is left alone.
func (j *Janitor) deleteRoom(ctx context.Context, roomID string, statuses []model.RoomStatus, activityBefore time.Time, reason string) (bool, error) {
	room, err := j.rooms.GetByID(ctx, roomID)
	if err != nil || room == nil {
		return false, err
	}
	members, err := j.members.ListByRoom(ctx, roomID)
	if err != nil {
		return false, err
	}

	deleted, err := j.rooms.DeleteIf(ctx, roomID, statuses, activityBefore)
	if err != nil || !deleted {
		return false, err
	}
	if _, err := j.members.DeleteByRoom(ctx, roomID); err != nil {
		return true, err
	}

	if room.Status.IsActive() {
		for _, m := range members {
			if !model.IsBot(m.UserID) {
				j.presence.LeaveRoom(ctx, m.UserID, roomID)
			}
		}
		if j.broadcaster != nil && reason != "" {
			j.broadcaster.Publish(&model.RoomEvent{
				Type:      model.EventRoomClosed,
				RoomID:    roomID,
				Payload:   map[string]string{"reason": reason},
				CreatedAt: j.now(),
			})
		}
	}

	logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"code":    room.Code,
		"status":  room.Status,
		"members": len(members),
	}).Info("janitor: room deleted")
	return true, nil
}
