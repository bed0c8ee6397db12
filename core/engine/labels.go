package engine

// Fixed user-facing texts. Menu content itself comes from the store;
// these cover the synthetic menus and the replies the engine issues on
// its own behalf.
const (
	LabelBackToMain   = "Main menu"
	LabelNoButtons    = "No buttons available"
	LabelCancel       = "Cancel"
	LabelAdminAnswer  = "Answer questions"
	LabelAdminBlock   = "Block user"
	LabelAdminConfirm = "Confirm block"

	TextChooseRole       = "Please choose your role:"
	TextChooseOption     = "Choose an option:"
	TextUnknownCommand   = "Unknown command. Please use the menu below."
	TextSubscribeTrouble = "Could not change your subscription, please try again."
	TextReminderStub     = "Reminders are not available yet."
	TextQuestionReceived = "Your question has been passed to the administrators."
	TextAdminMenu        = "Admin menu:"
	TextNoQuestions      = "No open questions."
	TextAnswerAccepted   = "Answer accepted."
	TextConfirmBlock     = "Block this user and delete their questions?"
	TextUserBlocked      = "User blocked, their open questions removed."
	TextAnswerPrefix     = "Answer to your question:"
)
