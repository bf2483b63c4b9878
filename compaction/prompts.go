package compaction

// SummaryPrefix opens every summary system message.
const SummaryPrefix = "New conversation summary:\n"

const roundSummaryInstruction = `Summarize the conversation above. For every round, in the original order, write one unit in the form "User mentioned: ...; assistant replied: ...". Keep each round's facts, names, numbers and decisions. Do not merge rounds and do not drop any round. Output only the summary.`

const systemSummaryInstruction = `The system messages above are earlier summaries of this conversation. Merge them into a single summary in the form "User mentioned: ...; assistant replied: ...", in chronological order. Combine repeated content, drop small talk and details with no later value, and keep facts the user may refer to again. Output only the merged summary.`
