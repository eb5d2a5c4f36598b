package bird

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/joomcode/errorx"
)

// ContactFilter selects the contacts ContactCount counts.
type ContactFilter int

const (
	AllContacts ContactFilter = iota
	FriendContacts
	NonFriendContacts
)

// ContactRawPayload returns the contact id, syncing contacts and rooms if the
// mirror does not know it.
func (m *Manager) ContactRawPayload(ctx context.Context, id string, forced bool) (ContactPayload, error) {
	log().Debugf("Manager.ContactRawPayload(%s, %v)", id, forced)
	return m.entity(ctx, id, forced, "contact", func(mr *mirrors) *Mirror[ContactPayload] { return mr.contacts })
}

// RoomRawPayload returns the room id, syncing contacts and rooms if the
// mirror does not know it.
func (m *Manager) RoomRawPayload(ctx context.Context, id string, forced bool) (ContactPayload, error) {
	log().Debugf("Manager.RoomRawPayload(%s, %v)", id, forced)
	return m.entity(ctx, id, forced, "room", func(mr *mirrors) *Mirror[ContactPayload] { return mr.rooms })
}

func (m *Manager) entity(ctx context.Context, id string, forced bool, what string, mirror func(*mirrors) *Mirror[ContactPayload]) (ContactPayload, error) {
	mr, err := m.cache()
	if err != nil {
		return ContactPayload{}, err
	}
	id = NormalizeID(id)
	if payload, ok, err := mirror(mr).Get(id); err != nil || ok {
		return payload, err
	}
	if err := m.SyncContactsAndRooms(ctx, forced); err != nil {
		return ContactPayload{}, err
	}
	payload, ok, err := mirror(mr).Get(id)
	if err != nil {
		return ContactPayload{}, err
	}
	if !ok {
		return ContactPayload{}, notFound(what, id)
	}
	return payload, nil
}

// RoomMemberRawPayload returns the members of roomID. A room without members
// counts as unknown and is synced.
func (m *Manager) RoomMemberRawPayload(ctx context.Context, roomID string, forced bool) (RoomMemberSet, error) {
	log().Debugf("Manager.RoomMemberRawPayload(%s, %v)", roomID, forced)

	mr, err := m.cache()
	if err != nil {
		return nil, err
	}
	roomID = NormalizeID(roomID)
	if members, ok, err := mr.members.Get(roomID); err != nil {
		return nil, err
	} else if ok && len(members) > 0 {
		return members, nil
	}
	members, err := m.fetchRoomMembers(ctx, roomID, forced)
	if err != nil {
		return nil, err
	}
	if err := mr.members.Set(members.RoomID, members.Members); err != nil {
		return nil, err
	}
	return members.Members, nil
}

// RoomMemberIDList returns the sorted contact ids of the members of roomID.
func (m *Manager) RoomMemberIDList(ctx context.Context, roomID string, forced bool) ([]string, error) {
	members, err := m.RoomMemberRawPayload(ctx, roomID, forced)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ContactIDList returns the ids of all contacts. An empty mirror is synced first.
func (m *Manager) ContactIDList(ctx context.Context, forced bool) ([]string, error) {
	return m.idList(ctx, forced, func(mr *mirrors) *Mirror[ContactPayload] { return mr.contacts })
}

// RoomIDList returns the ids of all rooms. An empty mirror is synced first.
func (m *Manager) RoomIDList(ctx context.Context, forced bool) ([]string, error) {
	return m.idList(ctx, forced, func(mr *mirrors) *Mirror[ContactPayload] { return mr.rooms })
}

func (m *Manager) idList(ctx context.Context, forced bool, mirror func(*mirrors) *Mirror[ContactPayload]) ([]string, error) {
	mr, err := m.cache()
	if err != nil {
		return nil, err
	}
	ids, err := mirror(mr).Keys()
	if err != nil || len(ids) > 0 {
		return ids, err
	}
	if err := m.SyncContactsAndRooms(ctx, forced); err != nil {
		return nil, err
	}
	return mirror(mr).Keys()
}

// ContactCount counts the mirrored contacts. It never syncs.
func (m *Manager) ContactCount(filter ContactFilter) (int, error) {
	mr, err := m.cache()
	if err != nil {
		return 0, err
	}
	if filter == AllContacts {
		return mr.contacts.Len()
	}
	contacts, err := mr.contacts.Values()
	if err != nil {
		return 0, err
	}
	friends := 0
	for _, contact := range contacts {
		if contact.IsFriend == 1 {
			friends++
		}
	}
	if filter == FriendContacts {
		return friends, nil
	}
	return len(contacts) - friends, nil
}

// SyncContactsAndRooms fetches the contact list and writes rooms and contacts
// into their mirrors. Everything in the contact list is a friend.
func (m *Manager) SyncContactsAndRooms(ctx context.Context, forced bool) error {
	log().Debugf("Manager.SyncContactsAndRooms(%v)", forced)

	mr, err := m.cache()
	if err != nil {
		return err
	}
	list, err := m.fetchContactList(ctx, forced)
	if err != nil {
		return err
	}
	for _, payload := range list.List {
		id := NormalizeID(payload.ID)
		switch payload.CType {
		case ContactTypeRoom:
			err = mr.rooms.Set(id, payload)
		case ContactTypeContact:
			payload.IsFriend = 1
			err = mr.contacts.Set(id, payload)
		default:
			log().Debugf("Manager.SyncContactsAndRooms: %s has unknown c_type %q", id, payload.CType)
		}
		if err != nil {
			return err
		}
	}

	contacts, _ := mr.contacts.Len()
	rooms, _ := mr.rooms.Len()
	log().Debugf("Manager.SyncContactsAndRooms: %d contacts, %d rooms", contacts, rooms)
	return nil
}

// SyncAllRoomMember syncs the members of every room. Members which are not
// mirrored as contacts yet are added as contacts.
func (m *Manager) SyncAllRoomMember(ctx context.Context, forced bool) error {
	log().Debugf("Manager.SyncAllRoomMember(%v)", forced)

	mr, err := m.cache()
	if err != nil {
		return err
	}
	roomIDs, err := m.RoomIDList(ctx, false)
	if err != nil {
		return err
	}
	for _, roomID := range roomIDs {
		members, err := m.fetchRoomMembers(ctx, roomID, forced)
		if err != nil {
			return err
		}
		if err := mr.members.Set(members.RoomID, members.Members); err != nil {
			return err
		}
		for contactID, member := range members.Members {
			if ok, err := mr.contacts.Has(contactID); err != nil {
				return err
			} else if ok {
				continue
			}
			if err := mr.contacts.Set(contactID, MemberToContact(member)); err != nil {
				return err
			}
		}
	}
	return nil
}

// SyncAvatar asks the backend for all avatars and waits until there is one
// per friend or the poll attempts are used up. Avatars are written into the
// mirrored contacts. A backend which does not deliver is logged, not failed.
func (m *Manager) SyncAvatar(ctx context.Context) error {
	log().Debugf("Manager.SyncAvatar()")

	mr, err := m.cache()
	if err != nil {
		return err
	}
	friends, err := m.ContactCount(FriendContacts)
	if err != nil {
		return err
	}

	collected := []Avatar{}
	m.mxAvatars.Lock()
	m.avatars = &collected
	m.mxAvatars.Unlock()
	defer func() {
		m.mxAvatars.Lock()
		m.avatars = nil
		m.mxAvatars.Unlock()
	}()

	if err := m.enqueueErr(KindGetAvatar, func(conn Conn) error {
		return conn.GetAvatar(ctx)
	}); err != nil {
		log().Warnf("Manager.SyncAvatar: %v", err)
		return nil
	}

	avatars := m.pollAvatars(ctx, friends)
	for _, avatar := range avatars {
		id := NormalizeID(avatar.ID)
		contact, ok, err := mr.contacts.Get(id)
		if err != nil {
			log().Warnf("Manager.SyncAvatar: %s: %v", id, err)
			continue
		}
		if !ok {
			continue
		}
		contact.Avatar = avatar.Img
		if err := mr.contacts.Set(id, contact); err != nil {
			log().Warnf("Manager.SyncAvatar: %s: %v", id, err)
		}
	}
	return nil
}

// pollAvatars waits until want avatars have been collected and returns what
// arrived until then.
func (m *Manager) pollAvatars(ctx context.Context, want int) []Avatar {
	collected := func() []Avatar {
		m.mxAvatars.Lock()
		defer m.mxAvatars.Unlock()

		return append([]Avatar(nil), (*m.avatars)...)
	}

	ticker := time.NewTicker(m.cfg.AvatarPollInterval)
	defer ticker.Stop()

	for attempt := 0; len(collected()) < want; attempt++ {
		if attempt >= m.cfg.AvatarPollAttempts {
			log().Warnf("Manager.SyncAvatar: got %d of %d avatars within %v", len(collected()), want,
				time.Duration(m.cfg.AvatarPollAttempts)*m.cfg.AvatarPollInterval)
			break
		}
		select {
		case <-ctx.Done():
			log().Warnf("Manager.SyncAvatar: %v", ctx.Err())
			return collected()
		case <-ticker.C:
		}
	}
	return collected()
}

func (m *Manager) onAvatar(list AvatarList) {
	m.mxAvatars.Lock()
	defer m.mxAvatars.Unlock()

	if m.avatars == nil {
		log().Debugf("Manager: %d avatars arrived after sync, dropped", len(list.List))
		return
	}
	*m.avatars = append(*m.avatars, list.List...)
	log().Infof("Manager: synced %d avatars", len(*m.avatars))
}

// RoomRawPayloadDirty drops roomID from the room mirror, the next access syncs it.
func (m *Manager) RoomRawPayloadDirty(roomID string) error {
	log().Debugf("Manager.RoomRawPayloadDirty(%s)", roomID)

	mr, err := m.cache()
	if err != nil {
		return err
	}
	m.dedupe.Forget(KindSyncContactAndRoom)
	return mr.rooms.Delete(NormalizeID(roomID))
}

// RoomMemberRawPayloadDirty drops the members of roomID, the next access syncs them.
func (m *Manager) RoomMemberRawPayloadDirty(roomID string) error {
	log().Debugf("Manager.RoomMemberRawPayloadDirty(%s)", roomID)

	mr, err := m.cache()
	if err != nil {
		return err
	}
	roomID = NormalizeID(roomID)
	m.dedupe.Forget(KindSyncRoomMembers, roomID)
	return mr.members.Delete(roomID)
}

// MessageRawPayload returns a message received within the message cache life.
func (m *Manager) MessageRawPayload(id string) (*MessagePayload, error) {
	data, err := m.messages.Get(id)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil, notFound("message", id)
	}
	if err != nil {
		return nil, errorx.EnsureStackTrace(err)
	}
	msg := &MessagePayload{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, errorx.EnsureStackTrace(err)
	}
	return msg, nil
}

func (m *Manager) onMessage(msg *MessagePayload) {
	data, err := json.Marshal(msg)
	if err == nil {
		err = m.messages.Set(msg.MsgID, data)
	}
	if err != nil {
		log().Warnf("Manager: caching message %s: %v", msg.MsgID, err)
	}
}

func (m *Manager) fetchContactList(ctx context.Context, forced bool) (ContactList, error) {
	fetch := func() (ContactList, error) {
		conn, err := m.connection()
		if err != nil {
			return ContactList{}, err
		}
		return conn.SyncContactAndRoom(ctx)
	}
	if forced {
		return Enqueue(m.queue, KindSyncContactAndRoom, fetch)
	}
	return Dedupe(m.dedupe, KindSyncContactAndRoom, nil, fetch)
}

func (m *Manager) fetchRoomMembers(ctx context.Context, roomID string, forced bool) (RoomMembers, error) {
	fetch := func() (RoomMembers, error) {
		conn, err := m.connection()
		if err != nil {
			return RoomMembers{}, err
		}
		return conn.SyncRoomMembers(ctx, roomID)
	}
	if forced {
		return Enqueue(m.queue, KindSyncRoomMembers, fetch)
	}
	return Dedupe(m.dedupe, KindSyncRoomMembers, []any{roomID}, fetch)
}
