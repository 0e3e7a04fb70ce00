package sqlinline

// Schema statements are applied in order by `ledgerctl migrate`.
var Schema = []string{QCreateCountersTable, QCreateJobsTable, QCreateJobsIndexes}

const QCreateCountersTable = `--sql 3c1e7b52-9d4a-4f0e-8a61-5b2f7c9d0e13
create table if not exists image_counters (
    id serial primary key,
    counter_name varchar(50) unique not null,
    current_value bigint not null default 0,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
`

const QCreateJobsTable = `--sql 7a2d9e41-6b3c-4d58-9e07-2f1a8c6b4d90
create table if not exists enhancement_jobs (
    id serial primary key,
    job_id varchar(255) unique not null,
    image_id varchar(255) not null,
    original_image_url text not null,
    enhanced_image_url text,
    face_parsing_config jsonb,
    status varchar(50) not null default 'pending',
    progress integer not null default 0,
    error_message text,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
`

const QCreateJobsIndexes = `--sql 0e5f8b27-1d9c-4a36-b4e2-8c7d6a5f3b21
create index if not exists idx_enhancement_jobs_image_id on enhancement_jobs(image_id);
create index if not exists idx_enhancement_jobs_status on enhancement_jobs(status);
create index if not exists idx_enhancement_jobs_created_at on enhancement_jobs(created_at desc);
`
