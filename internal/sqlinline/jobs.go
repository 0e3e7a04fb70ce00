package sqlinline

const QInsertJob = `--sql 2f6a9c14-7b3e-4d80-9a25-e1c4b7d8f039
insert into enhancement_jobs (
    job_id,
    image_id,
    original_image_url,
    face_parsing_config,
    status,
    progress,
    created_at,
    updated_at
)
values ($1::text, $2::text, $3::text, $4::jsonb, $5::text, $6::int, now(), now())
returning id, created_at, updated_at;
`

// QUpdateJobOnPoll keeps the stored progress and result when the poll carries
// none, so re-polling a completed job never clears its enhanced url.
const QUpdateJobOnPoll = `--sql 8e3b5d27-1c9f-4a64-b0d8-7f2e6a1c9b53
update enhancement_jobs
set status = $2::text,
    progress = coalesce($3::int, progress),
    error_message = $4::text,
    enhanced_image_url = coalesce($5::text, enhanced_image_url),
    updated_at = now()
where job_id = $1::text;
`

const QSelectJob = `--sql 4a7c1e95-3d2b-4f86-8e09-b5c6d7a2f314
select id, job_id, image_id, original_image_url, enhanced_image_url, face_parsing_config,
       status, progress, error_message, created_at, updated_at
from enhancement_jobs
where job_id = $1::text;
`

const QSelectLatestJobForImage = `--sql 6c9e2b48-5f1a-4d37-a2c6-9e8b0d4f7a15
select id, job_id, image_id, original_image_url, enhanced_image_url, face_parsing_config,
       status, progress, error_message, created_at, updated_at
from enhancement_jobs
where image_id = $1::text
order by created_at desc, id desc
limit 1;
`

const QListRecentJobs = `--sql 1b5d8f36-9a2e-4c71-8f43-d2a6c9e0b187
select id, job_id, image_id, original_image_url, enhanced_image_url, face_parsing_config,
       status, progress, error_message, created_at, updated_at
from enhancement_jobs
order by created_at desc, id desc
limit $1::int;
`
