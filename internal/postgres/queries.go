package postgres

const (
	queryUserProfile = `
		SELECT id, display_name, email
		FROM users
		WHERE id = $1`

	queryUserExists = `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`

	roomColumns = `id, participant_low, participant_high, kind, created_at, last_activity_at`

	queryRoomByID = `
		SELECT ` + roomColumns + `
		FROM chat_rooms
		WHERE id = $1`

	queryRoomByPair = `
		SELECT ` + roomColumns + `
		FROM chat_rooms
		WHERE participant_low = $1 AND participant_high = $2`

	queryInsertRoom = `
		INSERT INTO chat_rooms (participant_low, participant_high, kind, created_at, last_activity_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (participant_low, participant_high) DO NOTHING
		RETURNING ` + roomColumns

	queryRoomsForUser = `
		SELECT r.id, r.participant_low, r.participant_high, r.kind, r.created_at, r.last_activity_at,
		       lo.id, lo.display_name, lo.email,
		       hi.id, hi.display_name, hi.email
		FROM chat_rooms r
		JOIN users lo ON lo.id = r.participant_low
		JOIN users hi ON hi.id = r.participant_high
		WHERE r.participant_low = $1 OR r.participant_high = $1
		ORDER BY r.last_activity_at DESC, r.id DESC`

	queryInsertMessage = `
		INSERT INTO chat_messages (room_id, sender_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	// last_activity_at never moves backwards
	queryTouchRoom = `
		UPDATE chat_rooms
		SET last_activity_at = GREATEST(last_activity_at, $2)
		WHERE id = $1`

	messageWithSenderColumns = `m.id, m.room_id, m.sender_id, m.content, m.created_at, u.id, u.display_name, u.email`

	queryMessageWithSender = `
		SELECT ` + messageWithSenderColumns + `
		FROM chat_messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.id = $1`

	queryHistory = `
		SELECT ` + messageWithSenderColumns + `
		FROM chat_messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.room_id = $1
		  AND (
		    $2::timestamptz IS NULL
		    OR m.created_at > $2
		    OR (m.created_at = $2 AND m.id > $3::bigint)
		  )
		ORDER BY m.created_at ASC, m.id ASC
		LIMIT $4`
)
