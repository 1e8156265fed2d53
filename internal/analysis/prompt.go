package analysis

// SystemPrompt frames the analysis model's role.
const SystemPrompt = `You are an expert video content analyst. Reply only with the structured analysis as a JSON object.`

// analysisPrompt is formatted with the video title, channel and transcript.
const analysisPrompt = `Analyze the transcript of the following YouTube video and return structured information.

# Video
Title: %s
Channel: %s

# Transcript
%s

# Instructions
Return a JSON object with exactly these fields and no other text:

1. summary: an overview of the video (400-600 characters)
2. category: the single main category of the video
3. topics: the main topics covered (3-7 items)
4. segments: meaningful sections of the video, each with
   - start_time: approximate start in seconds
   - end_time: approximate end in seconds
   - transcript: the part of the transcript covered by the segment
   - subcategory: the segment's subcategory
   - content_summary: a summary of the segment (100-200 characters)
   - keywords: the segment's key terms (3-5 items)

Follow the flow of the whole video and split it into logical, meaningful segments.
Write the summary, subcategories and keywords in the transcript's language.`
