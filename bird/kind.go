package bird

// Kind names an operation of the backend vocabulary. It is the key of the
// dedupe cache and of the serialization queues.
type Kind int

const (
	KindSendMessage Kind = iota
	KindSyncContactAndRoom
	KindSyncRoomMembers
	KindGetAvatar
	KindDeleteChatRoomMember
	KindAddChatRoomMember
	KindModifyRoomTopic
	KindCreateRoom
	KindModifyContactAlias
	KindRoomQrcode
	KindSetAnnouncement
	KindFriendshipAdd
	KindFriendshipAccept
	KindRoomQuit
	KindSyncAvatar
)

type kindInfo struct {
	name    string
	request Action
	// reply is empty for fire and forget operations
	reply Action
	// serialized kinds get a single worker queue
	serialized bool
}

var kinds = map[Kind]kindInfo{
	KindSendMessage:          {name: "sendMessage", request: ActionChat},
	KindSyncContactAndRoom:   {name: "syncContactAndRoom", request: ActionGainContactList, reply: ActionContactList, serialized: true},
	KindSyncRoomMembers:      {name: "syncRoomMembers", request: ActionRoomMember, reply: ActionRoomMember, serialized: true},
	KindGetAvatar:            {name: "getAvatar", request: ActionGainAvatarList, serialized: true},
	KindDeleteChatRoomMember: {name: "deleteChatRoomMember", request: ActionDeleteRoomMember, serialized: true},
	KindAddChatRoomMember:    {name: "addChatRoomMember", request: ActionAddRoomMember, serialized: true},
	KindModifyRoomTopic:      {name: "modifyRoomTopic", request: ActionModifyRoomTopic, reply: ActionModifyRoomTopic, serialized: true},
	KindCreateRoom:           {name: "createRoom", request: ActionCreateRoom, reply: ActionCreateRoom, serialized: true},
	KindModifyContactAlias:   {name: "modifyContactAlias", request: ActionModifyContactNick, serialized: true},
	KindRoomQrcode:           {name: "roomQrcode", request: ActionRoomQrcode, reply: ActionRoomQrcode, serialized: true},
	KindSetAnnouncement:      {name: "setAnnouncement", request: ActionAnnouncement, reply: ActionAnnouncement, serialized: true},
	KindFriendshipAdd:        {name: "friendshipAdd", request: ActionFriendshipAdd, reply: ActionFriendshipAdd, serialized: true},
	KindFriendshipAccept:     {name: "friendshipAccept", request: ActionFriendshipAccept, serialized: true},
	KindRoomQuit:             {name: "roomQuit", request: ActionRoomQuit, reply: ActionRoomQuit, serialized: true},
	KindSyncAvatar:           {name: "syncAvatar"},
}

func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.name
	}
	return "unknown"
}

// Request is the action of the frame sent for this kind.
func (k Kind) Request() Action {
	return kinds[k].request
}

// Reply is the action answering this kind, empty for fire and forget kinds.
func (k Kind) Reply() Action {
	return kinds[k].reply
}

// Serialized reports whether forced calls of this kind run one at a time.
func (k Kind) Serialized() bool {
	return kinds[k].serialized
}

// SerializedKinds lists the kinds that get a serialization queue.
func SerializedKinds() []Kind {
	ks := make([]Kind, 0, len(kinds))
	for k, info := range kinds {
		if info.serialized {
			ks = append(ks, k)
		}
	}
	return ks
}
