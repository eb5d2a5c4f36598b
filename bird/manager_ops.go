package bird

import (
	"context"
)

// SendMessage sends content to a contact or a room.
func (m *Manager) SendMessage(ctx context.Context, to, content string, contentType ContentType) error {
	log().Debugf("Manager.SendMessage(%s)", to)

	conn, err := m.connection()
	if err != nil {
		return err
	}
	return conn.SendMessage(ctx, to, content, contentType)
}

// DeleteChatRoomMember removes contactID from roomID. Failures are logged only.
func (m *Manager) DeleteChatRoomMember(ctx context.Context, roomID, contactID string) error {
	log().Debugf("Manager.DeleteChatRoomMember(%s, %s)", roomID, contactID)

	if err := m.enqueueErr(KindDeleteChatRoomMember, func(conn Conn) error {
		return conn.DeleteChatRoomMember(ctx, roomID, contactID)
	}); err != nil {
		log().Errorf("Manager.DeleteChatRoomMember: %v", err)
		return nil
	}
	return m.RoomMemberRawPayloadDirty(roomID)
}

func (m *Manager) AddChatRoomMember(ctx context.Context, roomID, contactID string) error {
	log().Debugf("Manager.AddChatRoomMember(%s, %s)", roomID, contactID)

	if err := m.enqueueErr(KindAddChatRoomMember, func(conn Conn) error {
		return conn.AddChatRoomMember(ctx, roomID, contactID)
	}); err != nil {
		return err
	}
	return m.RoomMemberRawPayloadDirty(roomID)
}

func (m *Manager) ModifyRoomTopic(ctx context.Context, roomID, topic string) error {
	log().Debugf("Manager.ModifyRoomTopic(%s, %s)", roomID, topic)

	if err := m.enqueueErr(KindModifyRoomTopic, func(conn Conn) error {
		return conn.ModifyRoomTopic(ctx, roomID, topic)
	}); err != nil {
		return err
	}
	return m.RoomRawPayloadDirty(roomID)
}

// CreateRoom creates a room with contactIDs and returns its id.
func (m *Manager) CreateRoom(ctx context.Context, contactIDs []string) (string, error) {
	log().Debugf("Manager.CreateRoom(%v)", contactIDs)

	return Enqueue(m.queue, KindCreateRoom, func() (string, error) {
		conn, err := m.connection()
		if err != nil {
			return "", err
		}
		return conn.CreateRoom(ctx, contactIDs)
	})
}

func (m *Manager) RoomQuit(ctx context.Context, roomID string) error {
	log().Debugf("Manager.RoomQuit(%s)", roomID)

	if err := m.enqueueErr(KindRoomQuit, func(conn Conn) error {
		return conn.RoomQuit(ctx, roomID)
	}); err != nil {
		return err
	}
	if err := m.RoomRawPayloadDirty(roomID); err != nil {
		return err
	}
	return m.RoomMemberRawPayloadDirty(roomID)
}

func (m *Manager) RoomQrcode(ctx context.Context, roomID string) (string, error) {
	log().Debugf("Manager.RoomQrcode(%s)", roomID)

	return Enqueue(m.queue, KindRoomQrcode, func() (string, error) {
		conn, err := m.connection()
		if err != nil {
			return "", err
		}
		return conn.RoomQrcode(ctx, roomID)
	})
}

func (m *Manager) SetAnnouncement(ctx context.Context, roomID, text string) error {
	log().Debugf("Manager.SetAnnouncement(%s)", roomID)

	if err := m.enqueueErr(KindSetAnnouncement, func(conn Conn) error {
		return conn.SetAnnouncement(ctx, roomID, text)
	}); err != nil {
		return err
	}
	return m.RoomRawPayloadDirty(roomID)
}

func (m *Manager) ModifyContactAlias(ctx context.Context, name string) error {
	log().Debugf("Manager.ModifyContactAlias(%s)", name)

	return m.enqueueErr(KindModifyContactAlias, func(conn Conn) error {
		return conn.ModifyContactAlias(ctx, name)
	})
}

func (m *Manager) FriendshipAdd(ctx context.Context, contactID, hello string) error {
	log().Debugf("Manager.FriendshipAdd(%s)", contactID)

	return m.enqueueErr(KindFriendshipAdd, func(conn Conn) error {
		return conn.FriendshipAdd(ctx, contactID, hello)
	})
}

func (m *Manager) FriendshipAccept(ctx context.Context, friendshipID string) error {
	log().Debugf("Manager.FriendshipAccept(%s)", friendshipID)

	return m.enqueueErr(KindFriendshipAccept, func(conn Conn) error {
		return conn.FriendshipAccept(ctx, friendshipID)
	})
}

func (m *Manager) enqueueErr(kind Kind, do func(conn Conn) error) error {
	_, err := Enqueue(m.queue, kind, func() (struct{}, error) {
		conn, err := m.connection()
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, do(conn)
	})
	return err
}
