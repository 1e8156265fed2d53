package report

// SystemPrompt frames the report model's role.
const SystemPrompt = `You are an expert report writer. Turn the video information you are given into an engaging, information-rich report in the requested format.`

var formatInstructions = map[Format]string{
	FormatSummary:      "Write a concise summary of the key points of the video (800-1000 characters).",
	FormatDetailed:     "Write a detailed analysis report of the video (2000-3000 characters) divided into sections, with in-depth discussion of each topic.",
	FormatPresentation: "Write a slide outline for a presentation: a title slide, an agenda, one slide per topic with bullet points, and a conclusion slide.",
	FormatMarkdown:     "Write a Markdown document, using headings, bullet lists and emphasis where appropriate.",
	FormatBulletPoints: "Write the main points of the video as a bulleted list grouped by topic.",
}

// reportPrompt is formatted with the format name, title, category, summary,
// topics, segment listing and instructions.
const reportPrompt = `Write a %s report based on the following video information.

# Video
Title: %s
Category: %s
Summary: %s
Topics: %s

# Segments
%s

# Instructions
%s

Write the report in the language of the video summary, in a professional and readable style.
Include all important information from the video and organize it logically.`
